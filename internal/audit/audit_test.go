package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (*memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memorySink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type memoryPublisher struct {
	topic, key string
	event      any
}

func (p *memoryPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.topic, p.key, p.event = topic, key, event
	return nil
}

func TestLogger_FansOutAndFillsRequestMeta(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	l := NewLogger(slog.Default(), a, b)

	ctx := WithRequestMeta(context.Background(), "10.0.0.1", "curl/8")
	l.Record(ctx, Event{ActorType: ActorUser, ActorID: "u1", Action: "login"})
	l.Close()

	for _, s := range []*memorySink{a, b} {
		events := s.all()
		require.Len(t, events, 1)
		assert.Equal(t, "login", events[0].Action)
		assert.Equal(t, "10.0.0.1", events[0].SourceIP)
		assert.Equal(t, "curl/8", events[0].UserAgent)
		assert.False(t, events[0].CreatedAt.IsZero())
	}
}

func TestLogger_SinkFailureDoesNotStopOthers(t *testing.T) {
	failing := &memorySink{err: errors.New("down")}
	ok := &memorySink{}
	l := NewLogger(slog.Default(), failing, ok)

	l.Record(context.Background(), Event{ActorType: ActorSystem, Action: "ping"})
	l.Close()

	assert.Len(t, ok.all(), 1)
}

func TestLogger_SurvivesCancelledCaller(t *testing.T) {
	s := &memorySink{}
	l := NewLogger(slog.Default(), s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Record(ctx, Event{ActorType: ActorUser, Action: "logout"})
	l.Close()

	assert.Len(t, s.all(), 1)
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	l.Record(context.Background(), Event{Action: "x"})
	l.Close()
}

func TestDBSink_Persists(t *testing.T) {
	r := repo.New(testutil.NewDB(t))
	l := NewLogger(slog.Default(), DBSink{Repo: r})

	l.Record(context.Background(), Event{
		ActorType: ActorAdmin,
		ActorID:   "admin-1",
		Action:    "credits_adjusted",
		Details:   map[string]any{"amount": 25},
	})
	l.Close()

	items, total, err := r.ListAuditEvents(context.Background(), repo.AuditFilter{Action: "credits_adjusted"}, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "admin-1", items[0].ActorID)
	assert.EqualValues(t, 25, items[0].Details["amount"])
}

func TestKafkaSink_UsesActorAsKey(t *testing.T) {
	p := &memoryPublisher{}
	sink := KafkaSink{Producer: p, Topic: "audit_events"}

	require.NoError(t, sink.Write(context.Background(), Event{ActorID: "u1", Action: "signup"}))
	assert.Equal(t, "audit_events", p.topic)
	assert.Equal(t, "u1", p.key)
	assert.Equal(t, "signup", p.event.(Event).Action)
}
