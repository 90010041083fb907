package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
)

func (r *GormRepo) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	return r.db(ctx).Create(t).Error
}

// ConsumeRefreshToken flips an active record to consumed. Zero rows means the
// token is unknown, expired, or was already consumed by someone else.
func (r *GormRepo) ConsumeRefreshToken(ctx context.Context, tokenHash, replacedBy string, now time.Time) (int64, error) {
	res := r.db(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND consumed_at IS NULL AND expires_at > ?", tokenHash, now).
		Updates(map[string]any{
			"consumed_at":      now,
			"replaced_by_hash": replacedBy,
		})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) FindRefreshByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := r.db(ctx).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) RevokeAllRefreshForAccount(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	res := r.db(ctx).Model(&models.RefreshToken{}).
		Where("account_id = ? AND consumed_at IS NULL", accountID).
		Update("consumed_at", now)
	return res.RowsAffected, res.Error
}

func (r *GormRepo) DeleteRefreshByHash(ctx context.Context, tokenHash string) (int64, error) {
	res := r.db(ctx).Where("token_hash = ?", tokenHash).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) PurgeExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	res := r.db(ctx).Where("expires_at <= ?", now).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) CountActiveRefresh(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	err := r.db(ctx).Model(&models.RefreshToken{}).
		Where("account_id = ? AND consumed_at IS NULL AND expires_at > ?", accountID, now).
		Count(&n).Error
	return n, err
}
