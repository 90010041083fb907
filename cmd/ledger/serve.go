package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/cache"
	"github.com/Skotchmaster/credit_ledger/internal/config"
	"github.com/Skotchmaster/credit_ledger/internal/es"
	"github.com/Skotchmaster/credit_ledger/internal/jobs"
	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/mykafka"
	"github.com/Skotchmaster/credit_ledger/internal/notify"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	httpserver "github.com/Skotchmaster/credit_ledger/internal/transport/http"
	"github.com/Skotchmaster/credit_ledger/pkg/db"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func openDB(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, *repo.GormRepo, error) {
	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	r := repo.New(gdb)
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close(gdb)
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("db_ready", "driver", cfg.DBDriver)
	return gdb, r, nil
}

type closer struct {
	name string
	fn   func() error
}

// closers run in reverse registration order, like deferred calls, so each
// resource outlives everything registered after it.
type closers struct {
	log  *slog.Logger
	list []closer
}

func (c *closers) add(name string, fn func() error) {
	c.list = append(c.list, closer{name: name, fn: fn})
}

func (c *closers) run() {
	for i := len(c.list) - 1; i >= 0; i-- {
		if err := c.list[i].fn(); err != nil {
			c.log.Error("close_failed", "resource", c.list[i].name, "error", err)
		}
	}
	c.list = nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.LogOptions())
	slog.SetDefault(log)

	gdb, r, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	cl := &closers{log: log}
	defer func() {
		cl.run()
		log.Info("shutdown_complete")
	}()
	cl.add("db", func() error { return db.Close(gdb) })

	sinks := []audit.Sink{audit.DBSink{Repo: r}}

	var prod *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod, err = mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		cl.add("kafka", prod.Close)
		sinks = append(sinks, audit.KafkaSink{Producer: prod, Topic: cfg.AuditTopic})
		log.Info("audit_sink_enabled", "sink", "kafka", "topic", cfg.AuditTopic)
	}
	if cfg.ESURL != "" {
		client, err := es.NewClient(es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, log)
		if err != nil {
			log.Warn("audit_sink_unavailable", "sink", "elasticsearch", "error", err)
		} else {
			sinks = append(sinks, audit.SearchSink{Client: client, Index: cfg.AuditIndex})
			log.Info("audit_sink_enabled", "sink", "elasticsearch", "index", cfg.AuditIndex)
		}
	}
	auditLog := audit.NewLogger(log, sinks...)
	cl.add("audit", func() error { auditLog.Close(); return nil })

	var notifier *notify.Notifier
	if cfg.AMQPURL != "" {
		pub, err := notify.DialRabbit(cfg.AMQPURL, cfg.LedgerQueue)
		if err != nil {
			log.Warn("ledger_events_unavailable", "error", err)
		} else {
			notifier = notify.NewNotifier(pub, log)
			cl.add("amqp", func() error { notifier.Close(); return pub.Close() })
		}
	}

	m := metrics.New()
	tokens := &service.TokenService{
		Repo:    r,
		Cfg:     service.TokenConfig{Secret: cfg.JWTSecret, AccessTTL: cfg.AccessTTL, RefreshTTL: cfg.RefreshTTL},
		Audit:   auditLog,
		Metrics: m,
	}
	ledger := &service.LedgerService{Repo: r, Audit: auditLog, Notifier: notifier, Metrics: m}
	keys := &service.APIKeyService{Repo: r, Audit: auditLog, Metrics: m, HashCost: cfg.BcryptCost}

	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("api_key_cache_unavailable", "error", err)
		} else {
			keys.Cache = cache.NewAPIKeyCache(r, rdb, cfg.APIKeyCacheTTL)
			cl.add("redis", rdb.Close)
			log.Info("api_key_cache_enabled", "ttl", cfg.APIKeyCacheTTL)
		}
	}

	sched := jobs.NewScheduler(log)
	if err := sched.AddTokenCleanup(cfg.CleanupSchedule, tokens); err != nil {
		return err
	}
	cl.add("api_keys", func() error { keys.Wait(); return nil })
	cl.add("cron", func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	e := httpserver.New(&httpserver.Deps{
		DB:      gdb,
		Log:     log,
		Metrics: m,
		Tokens:  tokens,
		Ledger:  ledger,
		Keys:    keys,
		Auth: &service.AuthService{
			Repo:        r,
			Tokens:      tokens,
			Ledger:      ledger,
			Audit:       auditLog,
			HashCost:    cfg.BcryptCost,
			SignupBonus: cfg.SignupBonus,
		},
		Payments: &service.PaymentService{
			Ledger:  ledger,
			Repo:    r,
			Audit:   auditLog,
			Metrics: m,
			Cfg: service.PaymentConfig{
				WebhookSecret: cfg.StripeWebhookSecret,
				Tolerance:     cfg.WebhookTolerance,
				Pricing:       service.Pricing{CreditsPerCent: cfg.CreditsPerCent},
			},
		},
		Usage: &service.UsageService{
			Repo:   r,
			Ledger: ledger,
			Audit:  auditLog,
			Costs:  service.Costs{Upload: cfg.UploadCost, Report: cfg.ReportCost, ServiceReport: cfg.ServiceReportCost},
		},
		Admin:        &service.AdminService{Repo: r, Ledger: ledger, Audit: auditLog, HashCost: cfg.BcryptCost},
		CookieSecure: cfg.CookieSecure,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listening", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error("http_shutdown_failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
