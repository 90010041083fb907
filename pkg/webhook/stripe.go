package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderStripeSignature = "Stripe-Signature"
	DefaultTolerance      = 5 * time.Minute
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifyStripeSignature checks header against the exact raw payload bytes.
func VerifyStripeSignature(payload []byte, header string, secret []byte, tolerance time.Duration, now time.Time) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: empty secret", ErrInvalidSignature)
	}
	if header == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidSignature, HeaderStripeSignature)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	tsStr, candidates, err := parseStripeHeader(header)
	if err != nil {
		return err
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	stamp := time.Unix(ts, 0)
	if now.Sub(stamp) > tolerance || stamp.Sub(now) > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeMAC(secret, tsStr, payload)
	for _, c := range candidates {
		got, err := hex.DecodeString(c)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
}

// SignStripe builds a header value in the provider's format; used by fixtures and local replay tooling.
func SignStripe(payload []byte, secret []byte, at time.Time) string {
	tsStr := strconv.FormatInt(at.Unix(), 10)
	return "t=" + tsStr + ",v1=" + hex.EncodeToString(computeMAC(secret, tsStr, payload))
}

func computeMAC(secret []byte, tsStr string, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tsStr))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseStripeHeader(header string) (string, []string, error) {
	var tsStr string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			tsStr = v
		case "v1":
			sigs = append(sigs, strings.TrimSpace(v))
		}
	}
	if tsStr == "" || len(sigs) == 0 {
		return "", nil, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	return tsStr, sigs, nil
}
