package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	ActorUser    = "user"
	ActorAdmin   = "admin"
	ActorService = "service"
	ActorSystem  = "system"
)

type Event struct {
	ActorType string         `json:"actor_type"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	SourceIP  string         `json:"source_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

type requestMetaKey struct{}

type requestMeta struct {
	ip        string
	userAgent string
}

// WithRequestMeta attaches caller address details picked up by Record.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{ip: ip, userAgent: userAgent})
}

const (
	defaultTimeout  = 3 * time.Second
	defaultInflight = 256
)

// Logger fans events out to every sink in the background. Sink failures are
// logged and dropped.
type Logger struct {
	log     *slog.Logger
	sinks   []Sink
	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewLogger(log *slog.Logger, sinks ...Sink) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{
		log:     log.With("component", "audit"),
		sinks:   sinks,
		timeout: defaultTimeout,
		sem:     make(chan struct{}, defaultInflight),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *Logger) Record(ctx context.Context, e Event) {
	if l == nil || len(l.sinks) == 0 {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	if m, ok := ctx.Value(requestMetaKey{}).(requestMeta); ok {
		if e.SourceIP == "" {
			e.SourceIP = m.ip
		}
		if e.UserAgent == "" {
			e.UserAgent = m.userAgent
		}
	}

	select {
	case l.sem <- struct{}{}:
	default:
		l.log.Warn("audit_dropped", "reason", "too many in-flight events", "action", e.Action)
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() { <-l.sem }()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		for _, s := range l.sinks {
			if err := s.Write(bg, e); err != nil {
				l.log.Warn("audit_sink_failed", "sink", s.Name(), "action", e.Action, "error", err)
			}
		}
	}()
}

// Close waits for in-flight events.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.wg.Wait()
}
