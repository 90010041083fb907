package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/internal/util"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/Skotchmaster/credit_ledger/pkg/webhook"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"

	MinPurchaseCents      = 50
	DefaultCreditsPerCent = 10

	referencePrefix = "stripe:"
)

type Outcome string

const (
	OutcomeCredited        Outcome = "credited"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeAccountNotFound Outcome = "account_not_found"
)

// Pricing is the only source of the credited amount of a purchase.
type Pricing struct {
	CreditsPerCent int64 `json:"credits_per_cent"`
}

func (p Pricing) rate() int64 {
	if p.CreditsPerCent <= 0 {
		return DefaultCreditsPerCent
	}
	return p.CreditsPerCent
}

func (p Pricing) CreditsFor(cents int64) int64 {
	if cents <= 0 {
		return 0
	}
	return cents * p.rate()
}

type PaymentConfig struct {
	WebhookSecret []byte
	Tolerance     time.Duration
	Pricing       Pricing
}

type WebhookResult struct {
	Outcome   Outcome             `json:"outcome"`
	EventID   string              `json:"event_id,omitempty"`
	EventType string              `json:"event_type,omitempty"`
	Entry     *models.LedgerEntry `json:"entry,omitempty"`
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (cs checkoutSession) accountRef() string {
	if v := strings.TrimSpace(cs.Metadata["account_id"]); v != "" {
		return v
	}
	return strings.TrimSpace(cs.Metadata["userId"])
}

type PaymentService struct {
	Ledger  *LedgerService
	Repo    *repo.GormRepo
	Cfg     PaymentConfig
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Clock   Clock
}

// Handle verifies a webhook delivery on its raw bytes and applies it at most
// once. Every verified delivery returns a nil error unless it is malformed.
func (s *PaymentService) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	l := logging.FromContext(ctx).With("svc", "payments.webhook")

	if err := webhook.VerifyStripeSignature(payload, signature, s.Cfg.WebhookSecret, s.Cfg.Tolerance, s.Clock.now()); err != nil {
		s.Metrics.Webhook("invalid_signature")
		l.Warn("webhook_rejected", "status", 400, "reason", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.Metrics.Webhook("malformed")
		l.Warn("webhook_malformed", "status", 400, "error", err)
		return nil, fmt.Errorf("%w: malformed event body", ErrValidation)
	}
	l = l.With("event_id", ev.ID, "event_type", ev.Type)
	res := &WebhookResult{EventID: ev.ID, EventType: ev.Type}

	if ev.Type != EventCheckoutCompleted && ev.Type != EventAsyncPaymentSucceeded {
		l.Info("webhook_ignored", "reason", "unhandled event type")
		return s.finish(res, OutcomeIgnored), nil
	}

	var cs checkoutSession
	if err := json.Unmarshal(ev.Data.Object, &cs); err != nil {
		s.Metrics.Webhook("malformed")
		l.Warn("webhook_malformed", "status", 400, "error", err)
		return nil, fmt.Errorf("%w: malformed checkout session", ErrValidation)
	}
	if cs.ID == "" {
		s.Metrics.Webhook("malformed")
		return nil, fmt.Errorf("%w: checkout session without id", ErrValidation)
	}
	l = l.With("session_id", cs.ID)

	if ev.Type == EventCheckoutCompleted && cs.PaymentStatus != "" && cs.PaymentStatus != "paid" {
		l.Info("webhook_ignored", "reason", "payment not settled", "payment_status", cs.PaymentStatus)
		return s.finish(res, OutcomeIgnored), nil
	}

	credits := s.Cfg.Pricing.CreditsFor(cs.AmountTotal)
	if credits <= 0 {
		l.Warn("webhook_ignored", "reason", "non-positive amount", "amount_total", cs.AmountTotal)
		return s.finish(res, OutcomeIgnored), nil
	}
	if raw := cs.Metadata["credits"]; raw != "" {
		if claimed, err := strconv.ParseInt(raw, 10, 64); err != nil || claimed != credits {
			l.Warn("webhook_metadata_credits_mismatch", "claimed", raw, "priced", credits)
		}
	}

	acct, err := s.resolveAccount(ctx, cs.accountRef())
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.Metrics.Webhook("failed")
		l.Error("payment_account_lookup_failed", "account_ref", cs.accountRef(), "error", err)
		return nil, err
	}
	if acct == nil {
		l.Error("payment_account_not_found", "account_ref", cs.accountRef(), "amount_total", cs.AmountTotal)
		s.Audit.Record(ctx, audit.Event{
			ActorType: audit.ActorSystem,
			ActorID:   "stripe",
			Action:    "payment_account_not_found",
			Details: map[string]any{
				"session_id":   cs.ID,
				"account_ref":  cs.accountRef(),
				"amount_total": cs.AmountTotal,
				"currency":     cs.Currency,
			},
		})
		return s.finish(res, OutcomeAccountNotFound), nil
	}

	entry, created, err := s.Ledger.Credit(ctx, CreditInput{
		AccountID:   acct.ID,
		Amount:      credits,
		Type:        models.EntryPurchase,
		Description: fmt.Sprintf("Purchased %d credits", credits),
		Reference: &Reference{
			Key: referencePrefix + cs.ID,
			Details: map[string]any{
				"session_id":     cs.ID,
				"payment_intent": cs.PaymentIntent,
				"amount_total":   cs.AmountTotal,
				"currency":       cs.Currency,
				"amount":         FormatCents(cs.AmountTotal),
				"event_id":       ev.ID,
			},
		},
		Actor: Actor{Type: audit.ActorSystem, ID: "stripe"},
	})
	if err != nil {
		s.Metrics.Webhook("failed")
		return nil, err
	}

	res.Entry = entry
	if !created {
		l.Info("webhook_duplicate", "entry_id", entry.ID)
		return s.finish(res, OutcomeDuplicate), nil
	}
	l.Info("payment_credited", "account_id", acct.ID, "credits", credits, "entry_id", entry.ID)
	return s.finish(res, OutcomeCredited), nil
}

func (s *PaymentService) finish(res *WebhookResult, o Outcome) *WebhookResult {
	s.Metrics.Webhook(string(o))
	res.Outcome = o
	return res
}

// resolveAccount reports ErrNotFound for a reference that names no active
// account. Any other error is a storage failure and must not be acknowledged.
func (s *PaymentService) resolveAccount(ctx context.Context, ref string) (*models.Account, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, ErrNotFound
	}
	acct, err := s.Repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acct.IsActive {
		return nil, ErrNotFound
	}
	return acct, nil
}

// History lists the purchase entries of one account.
func (s *PaymentService) History(ctx context.Context, accountID uuid.UUID, page, limit int) (*util.Page[models.LedgerEntry], error) {
	return s.Ledger.History(ctx, accountID, HistoryQuery{Page: page, Limit: limit, Type: models.EntryPurchase})
}

type PricingInfo struct {
	CreditsPerCent   int64  `json:"credits_per_cent"`
	MinPurchaseCents int64  `json:"min_purchase_cents"`
	MinPurchase      string `json:"min_purchase"`
	MinCredits       int64  `json:"min_credits"`
}

func (s *PaymentService) PricingInfo() PricingInfo {
	return PricingInfo{
		CreditsPerCent:   s.Cfg.Pricing.rate(),
		MinPurchaseCents: MinPurchaseCents,
		MinPurchase:      FormatCents(MinPurchaseCents),
		MinCredits:       s.Cfg.Pricing.CreditsFor(MinPurchaseCents),
	}
}

// FormatCents renders an amount in minor units as a two-place decimal string.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
