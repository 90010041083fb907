package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = 30 * time.Second

type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs periodic housekeeping for the ledger.
type Scheduler struct {
	c   *cron.Cron
	log *slog.Logger
}

// ParseSchedule accepts standard five field expressions and descriptors such as "@every 1h".
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return s, nil
}

func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "jobs")
	return &Scheduler{
		c:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		log: log,
	}
}

// AddTokenCleanup registers removal of expired refresh tokens.
func (s *Scheduler) AddTokenCleanup(expr string, p Purger) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	s.c.Schedule(sched, cron.FuncJob(func() { RunTokenCleanup(context.Background(), s.log, p) }))
	s.log.Info("job_registered", "job", "token_cleanup", "schedule", expr)
	return nil
}

func RunTokenCleanup(ctx context.Context, log *slog.Logger, p Purger) {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	n, err := p.PurgeExpired(ctx)
	if err != nil {
		log.Error("token_cleanup_failed", "error", err)
		return
	}
	log.Info("token_cleanup_done", "purged", n)
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop halts scheduling and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
