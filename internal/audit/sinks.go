package audit

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/credit_ledger/internal/es"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
)

type DBSink struct {
	Repo *repo.GormRepo
}

func (DBSink) Name() string { return "db" }

func (s DBSink) Write(ctx context.Context, e Event) error {
	return s.Repo.CreateAuditEvent(ctx, &models.AuditEvent{
		ActorType: e.ActorType,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Details:   e.Details,
		SourceIP:  e.SourceIP,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	})
}

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type KafkaSink struct {
	Producer Publisher
	Topic    string
}

func (KafkaSink) Name() string { return "kafka" }

func (s KafkaSink) Write(ctx context.Context, e Event) error {
	if err := s.Producer.PublishEvent(ctx, s.Topic, e.ActorID, e); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

type SearchSink struct {
	Client *elasticsearch.Client
	Index  string
}

func (SearchSink) Name() string { return "elasticsearch" }

func (s SearchSink) Write(ctx context.Context, e Event) error {
	return es.IndexDocument(ctx, s.Client, s.Index, uuid.NewString(), e)
}
