package repo

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
)

var ErrAccountAlreadyExist = errors.New("account already exist")

func (r *GormRepo) CreateAccountIfNotExists(ctx context.Context, a *models.Account) error {
	tx := r.db(ctx).Where("email = ?", a.Email).FirstOrCreate(a)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrAccountAlreadyExist
	}
	return nil
}

func (r *GormRepo) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	if err := r.db(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormRepo) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	if err := r.db(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (r *GormRepo) ListAccounts(ctx context.Context, offset, limit int) ([]models.Account, int64, error) {
	var total int64
	if err := r.db(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	items := make([]models.Account, 0, limit)
	if err := r.db(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
