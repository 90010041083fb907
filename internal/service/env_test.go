package service

import (
	"context"
	"testing"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/internal/testutil"
	"github.com/Skotchmaster/credit_ledger/pkg/hash"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-jwt-secret")

type testEnv struct {
	repo    *repo.GormRepo
	audit   *audit.Logger
	metrics *metrics.Metrics
	now     time.Time

	tokens   *TokenService
	ledger   *LedgerService
	auth     *AuthService
	keys     *APIKeyService
	payments *PaymentService
	admin    *AdminService
	usage    *UsageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	r := repo.New(testutil.NewDB(t))
	e := &testEnv{
		repo:    r,
		audit:   audit.NewLogger(nil, audit.DBSink{Repo: r}),
		metrics: metrics.New(),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := Clock(func() time.Time { return e.now })

	e.tokens = &TokenService{
		Repo:    r,
		Cfg:     TokenConfig{Secret: testSecret, AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour},
		Audit:   e.audit,
		Metrics: e.metrics,
		Clock:   clock,
	}
	e.ledger = &LedgerService{Repo: r, Audit: e.audit, Metrics: e.metrics}
	e.auth = &AuthService{
		Repo:     r,
		Tokens:   e.tokens,
		Ledger:   e.ledger,
		Audit:    e.audit,
		Clock:    clock,
		HashCost: bcrypt.MinCost,
	}
	e.keys = &APIKeyService{Repo: r, Audit: e.audit, Metrics: e.metrics, Clock: clock, HashCost: bcrypt.MinCost}
	e.payments = &PaymentService{
		Ledger:  e.ledger,
		Repo:    r,
		Cfg:     PaymentConfig{WebhookSecret: []byte("whsec_test"), Pricing: Pricing{CreditsPerCent: 10}},
		Audit:   e.audit,
		Metrics: e.metrics,
		Clock:   clock,
	}
	e.admin = &AdminService{Repo: r, Ledger: e.ledger, Audit: e.audit, HashCost: bcrypt.MinCost}
	e.usage = &UsageService{Repo: r, Ledger: e.ledger, Audit: e.audit, Clock: clock}

	t.Cleanup(func() {
		e.keys.Wait()
		e.audit.Close()
	})
	return e
}

// account inserts an active account whose balance is backed by one entry.
func (e *testEnv) account(t *testing.T, role string, credits int64) *models.Account {
	t.Helper()
	ctx := context.Background()

	pw, err := hash.HashPassword("password123", bcrypt.MinCost)
	require.NoError(t, err)
	a := &models.Account{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: &pw,
		Name:         "Test User",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, e.repo.CreateAccountIfNotExists(ctx, a))
	if credits > 0 {
		_, _, err := e.ledger.Credit(ctx, CreditInput{AccountID: a.ID, Amount: credits, Type: models.EntryAdminAdjustment})
		require.NoError(t, err)
	}
	a.Credits = credits
	return a
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	e.audit.Close()
	items, _, err := e.repo.ListAuditEvents(context.Background(), repo.AuditFilter{}, 0, 1000)
	require.NoError(t, err)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Action)
	}
	return out
}

func (e *testEnv) entries(t *testing.T, accountID uuid.UUID) []models.LedgerEntry {
	t.Helper()
	items, err := e.repo.EntriesAscending(context.Background(), accountID)
	require.NoError(t, err)
	return items
}
