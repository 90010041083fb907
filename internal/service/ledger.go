package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/notify"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/internal/util"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reference carries the idempotency key of a credit. Key is unique across the ledger.
type Reference struct {
	Key     string
	Details map[string]any
}

type Actor struct {
	Type string
	ID   string
}

func (a Actor) orSystem() Actor {
	if a.Type == "" {
		return Actor{Type: audit.ActorSystem, ID: "ledger"}
	}
	return a
}

type CreditInput struct {
	AccountID   uuid.UUID
	Amount      int64
	Type        string
	Description string
	Reference   *Reference
	Actor       Actor
}

type DebitInput struct {
	AccountID   uuid.UUID
	Amount      int64
	Type        string
	Description string
	Actor       Actor
}

type HistoryQuery struct {
	Page  int
	Limit int
	Type  string
}

type Reconciliation struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
	Sum       int64     `json:"sum"`
	Entries   int       `json:"entries"`
	ChainOK   bool      `json:"chain_ok"`
}

func (r Reconciliation) Consistent() bool {
	return r.ChainOK && r.Balance == r.Sum
}

// LedgerService is the only writer of account balances.
type LedgerService struct {
	Repo     *repo.GormRepo
	Audit    *audit.Logger
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// Credit adds amount to the balance and appends an entry. With a Reference the
// call is idempotent: a repeated key returns the first entry and created=false.
func (s *LedgerService) Credit(ctx context.Context, in CreditInput) (*models.LedgerEntry, bool, error) {
	l := logging.FromContext(ctx).With("svc", "ledger.credit", "account_id", in.AccountID, "type", in.Type)
	if err := validateCredit(in); err != nil {
		return nil, false, err
	}

	var (
		entry   *models.LedgerEntry
		created bool
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		entry, created, err = s.creditTx(ctx, tx, in)
		return err
	})
	if err != nil {
		if in.Reference != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
			// a concurrent delivery may have won the unique index on reference
			if existing, ferr := s.Repo.FindEntryByReference(ctx, in.Reference.Key); ferr == nil && existing.AccountID == in.AccountID {
				s.Metrics.LedgerOp("credit", in.Type, "duplicate")
				return existing, false, nil
			}
		}
		s.Metrics.LedgerOp("credit", in.Type, "failed")
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			l.Warn("credit_failed", "error", err)
			return nil, false, err
		}
		l.Error("credit_failed", "status", 500, "error", err)
		return nil, false, fmt.Errorf("credit: %w", err)
	}

	if !created {
		s.Metrics.LedgerOp("credit", in.Type, "duplicate")
		l.Info("credit_duplicate", "entry_id", entry.ID)
		return entry, false, nil
	}
	s.committed(ctx, "credit", entry, in.Actor)
	return entry, true, nil
}

func validateCredit(in CreditInput) error {
	if in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !models.ValidEntryType(in.Type) || in.Type == models.EntryConsumption {
		return fmt.Errorf("%w: invalid credit type %q", ErrValidation, in.Type)
	}
	if in.Reference != nil && in.Reference.Key == "" {
		return fmt.Errorf("%w: empty reference key", ErrValidation)
	}
	return nil
}

// creditTx must run inside a transaction. Callers that compose it with other
// writes are responsible for calling committed after the commit.
func (s *LedgerService) creditTx(ctx context.Context, tx *repo.GormRepo, in CreditInput) (*models.LedgerEntry, bool, error) {
	var ref *string
	if in.Reference != nil {
		existing, err := tx.FindEntryByReference(ctx, in.Reference.Key)
		switch {
		case err == nil:
			if existing.AccountID != in.AccountID {
				return nil, false, fmt.Errorf("%w: reference bound to another account", ErrConflict)
			}
			return existing, false, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, err
		}
		key := in.Reference.Key
		ref = &key
	}

	n, err := tx.IncrementCredits(ctx, in.AccountID, in.Amount)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, fmt.Errorf("%w: account", ErrNotFound)
	}

	balance, err := tx.CreditsOf(ctx, in.AccountID)
	if err != nil {
		return nil, false, err
	}

	entry := &models.LedgerEntry{
		AccountID:    in.AccountID,
		Type:         in.Type,
		Amount:       in.Amount,
		BalanceAfter: balance,
		Description:  in.Description,
		Reference:    ref,
	}
	if in.Reference != nil && len(in.Reference.Details) > 0 {
		entry.ReferenceData = datatypes.JSONMap(in.Reference.Details)
	}
	if err := tx.CreateEntry(ctx, entry); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Debit lowers the balance with a single conditional update; nothing is
// written when the balance is short.
func (s *LedgerService) Debit(ctx context.Context, in DebitInput) (*models.LedgerEntry, error) {
	l := logging.FromContext(ctx).With("svc", "ledger.debit", "account_id", in.AccountID, "type", in.Type)
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !models.ValidEntryType(in.Type) {
		return nil, fmt.Errorf("%w: invalid debit type %q", ErrValidation, in.Type)
	}

	var entry *models.LedgerEntry
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		n, err := tx.DecrementCreditsIfSufficient(ctx, in.AccountID, in.Amount)
		if err != nil {
			return err
		}
		if n == 0 {
			exists, err := tx.AccountExists(ctx, in.AccountID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: account", ErrNotFound)
			}
			return ErrInsufficientBalance
		}

		balance, err := tx.CreditsOf(ctx, in.AccountID)
		if err != nil {
			return err
		}
		entry = &models.LedgerEntry{
			AccountID:    in.AccountID,
			Type:         in.Type,
			Amount:       -in.Amount,
			BalanceAfter: balance,
			Description:  in.Description,
		}
		return tx.CreateEntry(ctx, entry)
	})
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		s.Metrics.LedgerOp("debit", in.Type, "insufficient")
		l.Warn("debit_rejected", "status", 402, "amount", in.Amount)
		return nil, err
	case errors.Is(err, ErrNotFound):
		s.Metrics.LedgerOp("debit", in.Type, "failed")
		return nil, err
	case err != nil:
		s.Metrics.LedgerOp("debit", in.Type, "failed")
		l.Error("debit_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("debit: %w", err)
	}

	s.committed(ctx, "debit", entry, in.Actor)
	return entry, nil
}

func (s *LedgerService) committed(ctx context.Context, op string, e *models.LedgerEntry, actor Actor) {
	s.Metrics.LedgerOp(op, e.Type, "ok")
	s.Notifier.EntryCreated(ctx, e)

	actor = actor.orSystem()
	details := map[string]any{
		"entry_id":      e.ID,
		"account_id":    e.AccountID.String(),
		"type":          e.Type,
		"amount":        e.Amount,
		"balance_after": e.BalanceAfter,
	}
	if e.Reference != nil {
		details["reference"] = *e.Reference
	}
	s.Audit.Record(ctx, audit.Event{
		ActorType: actor.Type,
		ActorID:   actor.ID,
		Action:    "ledger_" + op,
		Details:   details,
	})
}

func (s *LedgerService) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	credits, err := s.Repo.CreditsOf(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	return credits, err
}

func (s *LedgerService) History(ctx context.Context, accountID uuid.UUID, q HistoryQuery) (*util.Page[models.LedgerEntry], error) {
	if q.Type != "" && !models.ValidEntryType(q.Type) {
		return nil, fmt.Errorf("%w: unknown entry type %q", ErrValidation, q.Type)
	}
	page, limit, offset := util.Calculate(q.Page, q.Limit)

	items, total, err := s.Repo.ListEntries(ctx, accountID, q.Type, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return util.NewPage(items, page, limit, total), nil
}

// Reconcile replays the entries of one account against its stored balance.
// Both are read under the account row lock so an in-flight debit cannot show
// up as drift.
func (s *LedgerService) Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error) {
	var (
		balance int64
		entries []models.LedgerEntry
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		n, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if balance, err = tx.CreditsOf(ctx, accountID); err != nil {
			return fmt.Errorf("load balance: %w", err)
		}
		if entries, err = tx.EntriesAscending(ctx, accountID); err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{AccountID: accountID, Balance: balance, Entries: len(entries), ChainOK: true}
	var running int64
	for _, e := range entries {
		running += e.Amount
		if e.BalanceAfter != running {
			rec.ChainOK = false
		}
	}
	rec.Sum = running
	return rec, nil
}
