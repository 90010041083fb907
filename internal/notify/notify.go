package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
)

type LedgerEvent struct {
	EntryID      uint      `json:"entry_id"`
	AccountID    uuid.UUID `json:"account_id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func EventFromEntry(e *models.LedgerEntry) LedgerEvent {
	ev := LedgerEvent{
		EntryID:      e.ID,
		AccountID:    e.AccountID,
		Type:         e.Type,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		CreatedAt:    e.CreatedAt,
	}
	if e.Reference != nil {
		ev.Reference = *e.Reference
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, e LedgerEvent) error
}

// Notifier publishes ledger events without blocking the caller.
type Notifier struct {
	pub     Publisher
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(pub Publisher, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{pub: pub, log: log.With("component", "notify"), timeout: 5 * time.Second}
}

func (n *Notifier) EntryCreated(ctx context.Context, e *models.LedgerEntry) {
	if n == nil || n.pub == nil {
		return
	}
	ev := EventFromEntry(e)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.pub.Publish(bg, ev); err != nil {
			n.log.Warn("ledger_event_publish_failed", "entry_id", ev.EntryID, "error", err)
		}
	}()
}

func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
