package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Skotchmaster/credit_ledger/internal/config"
	"github.com/Skotchmaster/credit_ledger/pkg/db"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["seed-admin"])
	assert.True(t, names["migrate"])
}

func TestCommandsRequireConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ADMIN_INITIAL_EMAIL", "")

	for _, args := range [][]string{{"serve"}, {"seed-admin"}, {"migrate"}} {
		root := rootCmd()
		root.SetArgs(args)
		err := root.Execute()
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "DATABASE_URL", args)
	}
}

func TestClosersRunInReverseAndSurviveFailures(t *testing.T) {
	var buf bytes.Buffer
	cl := &closers{log: logging.NewWithWriter(&buf, logging.Options{Level: "error"})}

	var order []string
	track := func(name string, err error) func() error {
		return func() error {
			order = append(order, name)
			return err
		}
	}
	cl.add("db", track("db", nil))
	cl.add("kafka", track("kafka", errors.New("broker gone")))
	cl.add("audit", track("audit", nil))

	cl.run()
	assert.Equal(t, []string{"audit", "kafka", "db"}, order)
	assert.Contains(t, buf.String(), "close_failed")
	assert.Contains(t, buf.String(), "broker gone")

	cl.run()
	assert.Len(t, order, 3)
}

func TestServeReleasesDatabaseOnStartupError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	cfg := &config.Config{
		DBDriver:        db.DriverSQLite,
		DatabaseURL:     path,
		LogLevel:        "error",
		JWTSecret:       []byte("0123456789abcdef0123456789abcdef"),
		CleanupSchedule: "every so often",
	}

	err := serve(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every so often")
}
