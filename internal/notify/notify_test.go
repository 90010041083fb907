package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPublisher struct {
	mu     sync.Mutex
	events []LedgerEvent
	err    error
}

func (p *memoryPublisher) Publish(_ context.Context, e LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fakeChannel struct {
	key string
	msg amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.key, c.msg = key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestNotifier_PublishesEntry(t *testing.T) {
	pub := &memoryPublisher{}
	n := NewNotifier(pub, slog.Default())
	ref := "stripe:cs_1"

	n.EntryCreated(context.Background(), &models.LedgerEntry{ID: 7, AccountID: uuid.New(), Type: models.EntryPurchase, Amount: 500, BalanceAfter: 550, Reference: &ref})
	n.Close()

	require.Len(t, pub.events, 1)
	assert.EqualValues(t, 7, pub.events[0].EntryID)
	assert.Equal(t, "stripe:cs_1", pub.events[0].Reference)
}

func TestNotifier_PublishErrorIsSwallowed(t *testing.T) {
	n := NewNotifier(&memoryPublisher{err: errors.New("closed")}, slog.Default())
	n.EntryCreated(context.Background(), &models.LedgerEntry{ID: 1})
	n.Close()
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	n.EntryCreated(context.Background(), &models.LedgerEntry{})
	n.Close()

	NewNotifier(nil, nil).EntryCreated(context.Background(), &models.LedgerEntry{})
}

func TestRabbitPublisher_PersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{ch: ch, queue: "ledger.entries"}

	require.NoError(t, p.Publish(context.Background(), LedgerEvent{EntryID: 3, Type: models.EntryConsumption, Amount: -10}))

	assert.Equal(t, "ledger.entries", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "ledger-entry-3", ch.msg.MessageId)

	var got LedgerEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
	assert.EqualValues(t, -10, got.Amount)
}

func TestDialRabbit_Broker(t *testing.T) {
	url := os.Getenv("AMQP_TEST_URL")
	if url == "" {
		t.Skip("AMQP_TEST_URL is required for this test")
	}

	p, err := DialRabbit(url, "ledger.entries.test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.Publish(context.Background(), LedgerEvent{EntryID: 1}))
}
