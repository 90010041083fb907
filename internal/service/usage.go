package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultUploadCost        = 10
	DefaultReportCost        = 5
	DefaultServiceReportCost = 5

	recentEntriesLimit = 10
)

type Operation string

const (
	OpUpload        Operation = "upload"
	OpReport        Operation = "report"
	OpServiceReport Operation = "service_report"
)

type Costs struct {
	Upload        int64
	Report        int64
	ServiceReport int64
}

func (c Costs) For(op Operation) (int64, error) {
	pick := func(v, def int64) int64 {
		if v <= 0 {
			return def
		}
		return v
	}
	switch op {
	case OpUpload:
		return pick(c.Upload, DefaultUploadCost), nil
	case OpReport:
		return pick(c.Report, DefaultReportCost), nil
	case OpServiceReport:
		return pick(c.ServiceReport, DefaultServiceReportCost), nil
	}
	return 0, fmt.Errorf("%w: unknown operation %q", ErrValidation, op)
}

var descriptions = map[Operation]string{
	OpUpload:        "File upload",
	OpReport:        "Report generation",
	OpServiceReport: "API call: user reports",
}

type SpendResult struct {
	Operation Operation           `json:"operation"`
	Cost      int64               `json:"cost"`
	Remaining int64               `json:"credits_remaining"`
	Entry     *models.LedgerEntry `json:"-"`
	Result    map[string]any      `json:"result"`
}

// UsageService meters paid operations. The charge is taken before the work runs.
type UsageService struct {
	Repo   *repo.GormRepo
	Ledger *LedgerService
	Audit  *audit.Logger
	Costs  Costs
	Clock  Clock
}

func (s *UsageService) Spend(ctx context.Context, actor Actor, accountID uuid.UUID, op Operation) (*SpendResult, error) {
	cost, err := s.Costs.For(op)
	if err != nil {
		return nil, err
	}
	entry, err := s.Ledger.Debit(ctx, DebitInput{
		AccountID:   accountID,
		Amount:      cost,
		Type:        models.EntryConsumption,
		Description: descriptions[op],
		Actor:       actor,
	})
	if err != nil {
		return nil, err
	}

	return &SpendResult{
		Operation: op,
		Cost:      cost,
		Remaining: entry.BalanceAfter,
		Entry:     entry,
		Result:    s.stub(op, entry),
	}, nil
}

// stub stands in for the metered work, which is produced elsewhere.
func (s *UsageService) stub(op Operation, e *models.LedgerEntry) map[string]any {
	now := s.Clock.now()
	id := fmt.Sprintf("%s_%d", op, e.ID)
	switch op {
	case OpUpload:
		return map[string]any{"upload_id": id, "status": "accepted", "received_at": now}
	case OpServiceReport:
		return map[string]any{"reports": []map[string]any{
			{"id": id + "_monthly", "name": "Monthly Usage Report", "generated_at": now.Add(-24 * time.Hour)},
			{"id": id + "_quarterly", "name": "Quarterly Analytics", "generated_at": now.Add(-30 * 24 * time.Hour)},
		}}
	default:
		return map[string]any{"report_id": id, "status": "queued", "requested_at": now}
	}
}

// CanAccess reports whether a key owner may act on target.
func CanAccess(owner *models.Account, target uuid.UUID) bool {
	return owner != nil && (owner.ID == target || owner.Role == models.RoleAdmin)
}

// ServiceReport charges target for a report requested through an API key.
func (s *UsageService) ServiceReport(ctx context.Context, key *models.APIKey, target uuid.UUID) (*SpendResult, error) {
	owner, err := s.keyOwner(ctx, key, target)
	if err != nil {
		return nil, err
	}
	res, err := s.Spend(ctx, Actor{Type: audit.ActorService, ID: key.ID.String()}, target, OpServiceReport)
	if err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, audit.Event{
		ActorType: audit.ActorService,
		ActorID:   key.ID.String(),
		Action:    "api_report_access",
		Details: map[string]any{
			"owner_id":          owner.ID.String(),
			"target_user_id":    target.String(),
			"cost":              res.Cost,
			"credits_remaining": res.Remaining,
		},
	})
	return res, nil
}

type AccountMetadata struct {
	Account       *models.Account      `json:"user"`
	RecentEntries []models.LedgerEntry `json:"recent_transactions"`
}

func (s *UsageService) Metadata(ctx context.Context, key *models.APIKey, target uuid.UUID) (*AccountMetadata, error) {
	if _, err := s.keyOwner(ctx, key, target); err != nil {
		return nil, err
	}
	acct, err := s.Repo.GetAccountByID(ctx, target)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: account", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	entries, _, err := s.Repo.ListEntries(ctx, target, "", 0, recentEntriesLimit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	s.Audit.Record(ctx, audit.Event{
		ActorType: audit.ActorService,
		ActorID:   key.ID.String(),
		Action:    "api_metadata_access",
		Details:   map[string]any{"target_user_id": target.String()},
	})
	return &AccountMetadata{Account: acct, RecentEntries: entries}, nil
}

func (s *UsageService) keyOwner(ctx context.Context, key *models.APIKey, target uuid.UUID) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "usage.service")
	if key == nil {
		return nil, ErrUnauthorized
	}
	owner, err := s.Repo.GetAccountByID(ctx, key.AccountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load key owner: %w", err)
	}
	if !owner.IsActive {
		return nil, ErrUnauthorized
	}
	if !CanAccess(owner, target) {
		l.Warn("service_access_denied", "status", 403, "key_id", key.ID, "target_user_id", target)
		return nil, fmt.Errorf("%w: access denied", ErrForbidden)
	}
	return owner, nil
}
