package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"gorm.io/gorm"
)

type AuditFilter struct {
	ActorType string
	Action    string
	From      *time.Time
	To        *time.Time
}

func (r *GormRepo) CreateAuditEvent(ctx context.Context, e *models.AuditEvent) error {
	return r.db(ctx).Create(e).Error
}

func (r *GormRepo) ListAuditEvents(ctx context.Context, f AuditFilter, offset, limit int) ([]models.AuditEvent, int64, error) {
	q := r.db(ctx).Model(&models.AuditEvent{})
	if f.ActorType != "" {
		q = q.Where("actor_type = ?", f.ActorType)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	items := make([]models.AuditEvent, 0, limit)
	if err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
