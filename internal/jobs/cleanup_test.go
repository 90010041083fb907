package jobs

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"@every 1h", "@hourly", "*/5 * * * *"} {
		_, err := ParseSchedule(expr)
		assert.NoError(t, err, expr)
	}
	_, err := ParseSchedule("every hour")
	assert.Error(t, err)
}

func TestRunTokenCleanupLogs(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, logging.Options{Level: "info"})

	RunTokenCleanup(context.Background(), log, &countingPurger{})
	assert.Contains(t, buf.String(), "token_cleanup_done")

	buf.Reset()
	RunTokenCleanup(context.Background(), log, &countingPurger{err: errors.New("db down")})
	assert.Contains(t, buf.String(), "token_cleanup_failed")
}

func TestSchedulerRunsCleanup(t *testing.T) {
	p := &countingPurger{}
	s := NewScheduler(nil)
	require.NoError(t, s.AddTokenCleanup("@every 1s", p))
	require.Error(t, s.AddTokenCleanup("nope", p))

	s.Start()
	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
