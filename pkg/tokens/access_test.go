package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-jwt-secret")

func TestSignAccess_SetsExpectedClaims(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	sub := uuid.NewString()

	token, err := SignAccess(secret, sub, "admin", "jti-1", now, now.Add(15*time.Minute))
	require.NoError(t, err)

	claims, err := AccessClaimsFromToken(token, secret, now)
	require.NoError(t, err)
	assert.Equal(t, sub, claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "jti-1", claims.ID)
	assert.WithinDuration(t, now.Add(15*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestAccessClaimsFromToken_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	token, err := SignAccess(secret, "u", "user", "j", now, now.Add(time.Minute))
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(token, secret, now.Add(2*time.Minute))
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestAccessClaimsFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	token, err := SignAccess(secret, "u", "user", "j", now, now.Add(time.Minute))
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(token, []byte("other"), now)
	require.Error(t, err)
}

func TestAccessClaimsFromToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	claims := AccessClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(unsigned, secret, now)
	require.Error(t, err)
}

func TestAccessClaimsFromToken_Garbage(t *testing.T) {
	t.Parallel()

	_, err := AccessClaimsFromToken("not-a-jwt", secret, time.Now())
	require.Error(t, err)
}
