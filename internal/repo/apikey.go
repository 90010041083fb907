package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
)

func (r *GormRepo) PrefixExists(ctx context.Context, prefix string) (bool, error) {
	var count int64
	if err := r.db(ctx).Model(&models.APIKey{}).
		Where("prefix = ?", prefix).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	return r.db(ctx).Create(k).Error
}

func (r *GormRepo) FindActiveAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	var k models.APIKey
	if err := r.db(ctx).
		Where("prefix = ? AND revoked = ?", prefix, false).
		First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *GormRepo) GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var k models.APIKey
	if err := r.db(ctx).Where("id = ?", id).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *GormRepo) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	return r.db(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("revoked", true).Error
}

func (r *GormRepo) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}

func (r *GormRepo) ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]models.APIKey, error) {
	var items []models.APIKey
	if err := r.db(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
