package repo

import (
	"context"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *GormRepo) IncrementCredits(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	res := r.db(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("credits", gorm.Expr("credits + ?", amount))
	return res.RowsAffected, res.Error
}

// DecrementCreditsIfSufficient is the only write path that lowers a balance.
// The predicate and the decrement run as one statement under the row lock.
func (r *GormRepo) DecrementCreditsIfSufficient(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	res := r.db(ctx).Model(&models.Account{}).
		Where("id = ? AND credits >= ?", accountID, amount).
		Update("credits", gorm.Expr("credits - ?", amount))
	return res.RowsAffected, res.Error
}

// LockAccount takes the account row lock that balance writers hold, so reads
// that follow in the same transaction see a settled balance. Zero rows means
// the account does not exist.
func (r *GormRepo) LockAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res := r.db(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("credits", gorm.Expr("credits"))
	return res.RowsAffected, res.Error
}

func (r *GormRepo) CreditsOf(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var a models.Account
	if err := r.db(ctx).Select("credits").Where("id = ?", accountID).First(&a).Error; err != nil {
		return 0, err
	}
	return a.Credits, nil
}

func (r *GormRepo) AccountExists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) CreateEntry(ctx context.Context, e *models.LedgerEntry) error {
	return r.db(ctx).Create(e).Error
}

func (r *GormRepo) FindEntryByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := r.db(ctx).Where("reference = ?", reference).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *GormRepo) ListEntries(ctx context.Context, accountID uuid.UUID, entryType string, offset, limit int) ([]models.LedgerEntry, int64, error) {
	q := r.db(ctx).Model(&models.LedgerEntry{}).Where("account_id = ?", accountID)
	if entryType != "" {
		q = q.Where("type = ?", entryType)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	items := make([]models.LedgerEntry, 0, limit)
	if err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// EntriesAscending returns the whole history oldest first; used for reconciliation only.
func (r *GormRepo) EntriesAscending(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	var items []models.LedgerEntry
	if err := r.db(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
