package service

import (
	"context"
	"testing"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_AdjustCredits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.account(t, models.RoleUser, 0)
	admin := Identity{AccountID: uuid.New(), Role: models.RoleAdmin}

	entry, err := e.admin.AdjustCredits(ctx, admin, a.ID, 25, "")
	require.NoError(t, err)
	assert.Equal(t, models.EntryAdminAdjustment, entry.Type)
	assert.Equal(t, "Admin credit adjustment", entry.Description)
	assert.EqualValues(t, 25, entry.BalanceAfter)

	_, err = e.admin.AdjustCredits(ctx, Identity{AccountID: a.ID, Role: models.RoleUser}, a.ID, 25, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.admin.AdjustCredits(ctx, admin, a.ID, 0, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.admin.AdjustCredits(ctx, admin, uuid.New(), 5, "")
	assert.ErrorIs(t, err, ErrNotFound)

	e.audit.Close()
	page, err := e.admin.ListAuditEvents(ctx, AuditQuery{ActorType: audit.ActorAdmin})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, "ledger_credit", page.Items[0].Action)
	assert.Equal(t, admin.AccountID.String(), page.Items[0].ActorID)
}

func TestAdmin_ListAuditEventsRejectsInvertedRange(t *testing.T) {
	e := newTestEnv(t)
	from := e.now
	to := e.now.Add(-time.Hour)

	_, err := e.admin.ListAuditEvents(context.Background(), AuditQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdmin_ListUsers(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 3; i++ {
		e.account(t, models.RoleUser, 0)
	}

	page, err := e.admin.ListUsers(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 2, page.Pages)
	assert.Len(t, page.Items, 1)
}

func TestAdmin_SeedAdminIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct, created, err := e.admin.SeedAdmin(ctx, "Admin@Example.com", "admin-password", DefaultAdminCredits)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleAdmin, acct.Role)
	assert.EqualValues(t, 1000, acct.Credits)

	again, created, err := e.admin.SeedAdmin(ctx, "admin@example.com", "admin-password", DefaultAdminCredits)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, acct.ID, again.ID)

	entries := e.entries(t, acct.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryAdminAdjustment, entries[0].Type)

	res, err := e.auth.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.Session.Role)

	_, _, err = e.admin.SeedAdmin(ctx, "", "x", 0)
	assert.ErrorIs(t, err, ErrValidation)
}
