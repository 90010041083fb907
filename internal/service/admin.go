package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/internal/util"
	"github.com/Skotchmaster/credit_ledger/pkg/hash"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultAdminCredits = 1000

type AdminService struct {
	Repo     *repo.GormRepo
	Ledger   *LedgerService
	Audit    *audit.Logger
	HashCost int
}

type AuditQuery struct {
	ActorType string
	Action    string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// AdjustCredits grants credits on behalf of an administrator.
func (s *AdminService) AdjustCredits(ctx context.Context, admin Identity, accountID uuid.UUID, amount int64, reason string) (*models.LedgerEntry, error) {
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	desc := strings.TrimSpace(reason)
	if desc == "" {
		desc = "Admin credit adjustment"
	}
	entry, _, err := s.Ledger.Credit(ctx, CreditInput{
		AccountID:   accountID,
		Amount:      amount,
		Type:        models.EntryAdminAdjustment,
		Description: desc,
		Actor:       Actor{Type: audit.ActorAdmin, ID: admin.AccountID.String()},
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("admin_credits_added",
		"svc", "admin.credits", "admin_id", admin.AccountID, "account_id", accountID, "amount", amount)
	return entry, nil
}

func (s *AdminService) ListUsers(ctx context.Context, page, limit int) (*util.Page[models.Account], error) {
	p, lim, offset := util.Calculate(page, limit)
	items, total, err := s.Repo.ListAccounts(ctx, offset, lim)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return util.NewPage(items, p, lim, total), nil
}

func (s *AdminService) ListAuditEvents(ctx context.Context, q AuditQuery) (*util.Page[models.AuditEvent], error) {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: end date before start date", ErrValidation)
	}
	p, lim, offset := util.Calculate(q.Page, q.Limit)
	items, total, err := s.Repo.ListAuditEvents(ctx, repo.AuditFilter{
		ActorType: q.ActorType,
		Action:    q.Action,
		From:      q.From,
		To:        q.To,
	}, offset, lim)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return util.NewPage(items, p, lim, total), nil
}

// SeedAdmin creates the initial administrator once. A second call with the
// same email returns the existing account and changes nothing.
func (s *AdminService) SeedAdmin(ctx context.Context, email, password string, initialCredits int64) (*models.Account, bool, error) {
	l := logging.FromContext(ctx).With("svc", "admin.seed")
	email = NormalizeEmail(email)
	if email == "" || len(password) < MinPasswordLength {
		return nil, false, fmt.Errorf("%w: admin email and a password of at least %d characters are required", ErrValidation, MinPasswordLength)
	}

	existing, err := s.Repo.GetAccountByEmail(ctx, email)
	if err == nil {
		l.Info("admin_seed_skipped", "account_id", existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load account: %w", err)
	}

	pwHash, err := hash.HashPassword(password, s.HashCost)
	if err != nil {
		return nil, false, err
	}
	acct := &models.Account{
		Email:        email,
		PasswordHash: &pwHash,
		Name:         "Administrator",
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	actor := Actor{Type: audit.ActorSystem, ID: "seed"}

	var entry *models.LedgerEntry
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := tx.CreateAccountIfNotExists(ctx, acct); err != nil {
			return err
		}
		if initialCredits <= 0 {
			return nil
		}
		var err error
		entry, _, err = s.Ledger.creditTx(ctx, tx, CreditInput{
			AccountID:   acct.ID,
			Amount:      initialCredits,
			Type:        models.EntryAdminAdjustment,
			Description: "Initial admin credits",
			Actor:       actor,
		})
		return err
	})
	if errors.Is(err, repo.ErrAccountAlreadyExist) {
		existing, ferr := s.Repo.GetAccountByEmail(ctx, email)
		if ferr != nil {
			return nil, false, fmt.Errorf("load account: %w", ferr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("seed admin: %w", err)
	}

	if entry != nil {
		acct.Credits = entry.BalanceAfter
		s.Ledger.committed(ctx, "credit", entry, actor)
	}
	s.Audit.Record(ctx, audit.Event{
		ActorType: actor.Type,
		ActorID:   actor.ID,
		Action:    "admin_seeded",
		Details:   map[string]any{"account_id": acct.ID.String(), "email": email},
	})
	l.Info("admin_seeded", "account_id", acct.ID)
	return acct, true, nil
}
