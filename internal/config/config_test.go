package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.ServerAddr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.EqualValues(t, 10, cfg.CreditsPerCent)
	assert.EqualValues(t, 50, cfg.SignupBonus)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.CookieSecure)

	opts := cfg.LogOptions()
	assert.Equal(t, "json", opts.Format)
	assert.Equal(t, ServiceName, opts.Service)
}

func TestValidateServe(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL, JWT_SECRET, STRIPE_WEBHOOK_SECRET")

	cfg.DatabaseURL = "postgres://localhost/ledger"
	cfg.JWTSecret = []byte("short")
	cfg.StripeWebhookSecret = []byte("whsec")
	cfg.DBDriver = "mysql"
	err = cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be")
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")

	cfg.JWTSecret = []byte(strings.Repeat("s", 32))
	cfg.DBDriver = "sqlite"
	assert.NoError(t, cfg.ValidateServe())
}
