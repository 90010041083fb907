package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/pkg/webhook"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func checkoutEvent(t *testing.T, eventType, sessionID, accountID string, amount int64, status string) []byte {
	t.Helper()
	obj := map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_intent": "pi_" + sessionID,
		"amount_total":   amount,
		"currency":       "usd",
		"metadata":       map[string]string{"account_id": accountID},
	}
	if status != "" {
		obj["payment_status"] = status
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + sessionID,
		"type": eventType,
		"data": map[string]any{"object": obj},
	})
	require.NoError(t, err)
	return body
}

func (e *testEnv) deliver(payload []byte) (*WebhookResult, error) {
	sig := webhook.SignStripe(payload, e.payments.Cfg.WebhookSecret, e.now)
	return e.payments.Handle(context.Background(), payload, sig)
}

func TestPayments_CreditsOnceForDuplicateDelivery(t *testing.T) {
	e := newTestEnv(t)
	a := e.account(t, models.RoleUser, 0)
	body := checkoutEvent(t, EventCheckoutCompleted, "cs_test_1", a.ID.String(), 500, "paid")

	res, err := e.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, res.Outcome)
	require.NotNil(t, res.Entry)
	assert.EqualValues(t, 5000, res.Entry.Amount)
	assert.Equal(t, "stripe:cs_test_1", *res.Entry.Reference)
	assert.Equal(t, "5.00", res.Entry.ReferenceData["amount"])

	res, err = e.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	bal, err := e.ledger.Balance(context.Background(), a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, bal)
	assert.Len(t, e.entries(t, a.ID), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Webhooks.WithLabelValues(string(OutcomeDuplicate))))
}

func TestPayments_AsyncSuccessAndMetadataFallback(t *testing.T) {
	e := newTestEnv(t)
	a := e.account(t, models.RoleUser, 0)

	body, err := json.Marshal(map[string]any{
		"id":   "evt_async",
		"type": EventAsyncPaymentSucceeded,
		"data": map[string]any{"object": map[string]any{
			"id":           "cs_async",
			"amount_total": 100,
			"metadata":     map[string]string{"userId": a.ID.String(), "credits": "999"},
		}},
	})
	require.NoError(t, err)

	res, err := e.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, res.Outcome)
	assert.EqualValues(t, 1000, res.Entry.Amount)
}

func TestPayments_BadSignatureHasNoEffect(t *testing.T) {
	e := newTestEnv(t)
	a := e.account(t, models.RoleUser, 0)
	body := checkoutEvent(t, EventCheckoutCompleted, "cs_bad", a.ID.String(), 500, "paid")

	sig := webhook.SignStripe(body, []byte("other-secret"), e.now)
	_, err := e.payments.Handle(context.Background(), body, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)

	stale := webhook.SignStripe(body, e.payments.Cfg.WebhookSecret, e.now.Add(-10*time.Minute))
	_, err = e.payments.Handle(context.Background(), body, stale)
	require.ErrorIs(t, err, ErrInvalidSignature)

	assert.Empty(t, e.entries(t, a.ID))
}

func TestPayments_IgnoredEvents(t *testing.T) {
	e := newTestEnv(t)
	a := e.account(t, models.RoleUser, 0)

	tests := []struct {
		name string
		body []byte
	}{
		{"other type", checkoutEvent(t, "customer.created", "cs_x", a.ID.String(), 500, "paid")},
		{"unpaid completion", checkoutEvent(t, EventCheckoutCompleted, "cs_unpaid", a.ID.String(), 500, "unpaid")},
		{"zero amount", checkoutEvent(t, EventCheckoutCompleted, "cs_zero", a.ID.String(), 0, "paid")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.deliver(tt.body)
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, res.Outcome)
		})
	}
	assert.Empty(t, e.entries(t, a.ID))
}

func TestPayments_UnknownAccountIsAcknowledged(t *testing.T) {
	e := newTestEnv(t)

	res, err := e.deliver(checkoutEvent(t, EventCheckoutCompleted, "cs_orphan", "not-a-uuid", 500, "paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccountNotFound, res.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Webhooks.WithLabelValues(string(OutcomeAccountNotFound))))
	assert.Contains(t, e.auditActions(t), "payment_account_not_found")
}

func TestPayments_InactiveAccountIsAcknowledged(t *testing.T) {
	e := newTestEnv(t)
	a := e.account(t, models.RoleUser, 0)
	require.NoError(t, e.repo.DB.Model(&models.Account{}).Where("id = ?", a.ID).Update("is_active", false).Error)

	res, err := e.deliver(checkoutEvent(t, EventCheckoutCompleted, "cs_inactive", a.ID.String(), 500, "paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccountNotFound, res.Outcome)
	assert.Empty(t, e.entries(t, a.ID))
}

func TestPayments_AccountLookupFailureIsNotAcknowledged(t *testing.T) {
	e := newTestEnv(t)
	a := e.account(t, models.RoleUser, 0)

	dbDown := errors.New("connection reset by peer")
	require.NoError(t, e.repo.DB.Callback().Query().Before("gorm:query").Register("test:fail_accounts", func(tx *gorm.DB) {
		if tx.Statement.Table == "accounts" {
			_ = tx.AddError(dbDown)
		}
	}))

	res, err := e.deliver(checkoutEvent(t, EventCheckoutCompleted, "cs_outage", a.ID.String(), 500, "paid"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dbDown)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Nil(t, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Webhooks.WithLabelValues("failed")))
	assert.Zero(t, testutil.ToFloat64(e.metrics.Webhooks.WithLabelValues(string(OutcomeAccountNotFound))))

	require.NoError(t, e.repo.DB.Callback().Query().Remove("test:fail_accounts"))
	assert.NotContains(t, e.auditActions(t), "payment_account_not_found")

	// The provider redelivers after the outage and the purchase lands.
	res, err = e.deliver(checkoutEvent(t, EventCheckoutCompleted, "cs_outage", a.ID.String(), 500, "paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, res.Outcome)
}

func TestPayments_MalformedBody(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.deliver([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.deliver([]byte(`{"id":"evt","type":"checkout.session.completed","data":{"object":{"amount_total":5}}}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPricing(t *testing.T) {
	p := Pricing{}
	assert.EqualValues(t, 500, p.CreditsFor(MinPurchaseCents))
	assert.Zero(t, p.CreditsFor(-1))
	assert.Equal(t, "12.34", FormatCents(1234))

	svc := &PaymentService{Cfg: PaymentConfig{Pricing: Pricing{CreditsPerCent: 2}}}
	info := svc.PricingInfo()
	assert.EqualValues(t, 2, info.CreditsPerCent)
	assert.EqualValues(t, 100, info.MinCredits)
	assert.Equal(t, "0.50", info.MinPurchase)
}
