package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Skotchmaster/credit_ledger/pkg/config"
	"github.com/Skotchmaster/credit_ledger/pkg/db"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	ServiceName     = "credit_ledger"
	minSecretLength = 32
)

type Config struct {
	ServerAddr   string
	DBDriver     string
	DatabaseURL  string
	LogLevel     string
	LogFormat    string
	CookieSecure bool

	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int

	StripeWebhookSecret []byte
	WebhookTolerance    time.Duration
	CreditsPerCent      int64

	SignupBonus       int64
	UploadCost        int64
	ReportCost        int64
	ServiceReportCost int64

	KafkaBrokers []string
	AuditTopic   string
	ESURL        string
	ESUser       string
	ESPassword   string
	AuditIndex   string

	RedisAddr      string
	RedisPassword  string
	APIKeyCacheTTL time.Duration

	AMQPURL     string
	LedgerQueue string

	CleanupSchedule string

	AdminEmail    string
	AdminPassword string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("config_env_file_skipped", "reason", err.Error())
	}

	cfg := &Config{
		ServerAddr:   config.EnvDefault("SERVER_ADDR", ":3000"),
		DBDriver:     config.EnvDefault("DB_DRIVER", db.DriverPostgres),
		DatabaseURL:  config.EnvDefault("DATABASE_URL", ""),
		LogLevel:     config.EnvDefault("LOG_LEVEL", "info"),
		LogFormat:    config.EnvDefault("LOG_FORMAT", logging.FormatJSON),
		CookieSecure: config.EnvBoolDefault("COOKIE_SECURE", true),

		JWTSecret:  []byte(config.EnvDefault("JWT_SECRET", "")),
		AccessTTL:  config.EnvDurationDefault("ACCESS_TTL", 15*time.Minute),
		RefreshTTL: config.EnvDurationDefault("REFRESH_TTL", 7*24*time.Hour),
		BcryptCost: config.EnvIntDefault("BCRYPT_COST", 12),

		StripeWebhookSecret: []byte(config.EnvDefault("STRIPE_WEBHOOK_SECRET", "")),
		WebhookTolerance:    config.EnvDurationDefault("WEBHOOK_TOLERANCE", 5*time.Minute),
		CreditsPerCent:      config.EnvInt64Default("CREDITS_PER_CENT", 10),

		SignupBonus:       config.EnvInt64Default("SIGNUP_BONUS", 50),
		UploadCost:        config.EnvInt64Default("UPLOAD_COST", 10),
		ReportCost:        config.EnvInt64Default("REPORT_COST", 5),
		ServiceReportCost: config.EnvInt64Default("SERVICE_REPORT_COST", 5),

		KafkaBrokers: config.CSV(config.EnvDefault("KAFKA_BROKERS", "")),
		AuditTopic:   config.EnvDefault("AUDIT_TOPIC", "ledger.audit"),
		ESURL:        config.EnvDefault("ES_URL", ""),
		ESUser:       config.EnvDefault("ES_USER", ""),
		ESPassword:   config.EnvDefault("ES_PASSWORD", ""),
		AuditIndex:   config.EnvDefault("AUDIT_INDEX", "ledger-audit"),

		RedisAddr:      config.EnvDefault("REDIS_ADDR", ""),
		RedisPassword:  config.EnvDefault("REDIS_PASSWORD", ""),
		APIKeyCacheTTL: config.EnvDurationDefault("APIKEY_CACHE_TTL", 30*time.Second),

		AMQPURL:     config.EnvDefault("AMQP_URL", ""),
		LedgerQueue: config.EnvDefault("LEDGER_QUEUE", "ledger.entries"),

		CleanupSchedule: config.EnvDefault("CLEANUP_SCHEDULE", "@every 1h"),

		AdminEmail:    config.EnvDefault("ADMIN_INITIAL_EMAIL", ""),
		AdminPassword: config.EnvDefault("ADMIN_INITIAL_PASSWORD", ""),
	}
	return cfg, nil
}

func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat, Service: ServiceName}
}

// ValidateServe checks what `serve` cannot start without.
func (c *Config) ValidateServe() error {
	if err := config.Require(map[string]string{
		"DATABASE_URL":          c.DatabaseURL,
		"JWT_SECRET":            string(c.JWTSecret),
		"STRIPE_WEBHOOK_SECRET": string(c.StripeWebhookSecret),
	}); err != nil {
		return err
	}
	var errs []error
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.DBDriver != db.DriverPostgres && c.DBDriver != db.DriverSQLite {
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errors.Join(errs...)
}

func (c *Config) ValidateSeed() error {
	return config.Require(map[string]string{
		"DATABASE_URL":           c.DatabaseURL,
		"ADMIN_INITIAL_EMAIL":    c.AdminEmail,
		"ADMIN_INITIAL_PASSWORD": c.AdminPassword,
	})
}

func (c *Config) ValidateMigrate() error {
	return config.Require(map[string]string{"DATABASE_URL": c.DatabaseURL})
}
