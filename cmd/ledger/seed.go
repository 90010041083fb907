package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/config"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/pkg/db"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
)

func seedAdminCmd() *cobra.Command {
	var credits int64
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the initial admin account from ADMIN_INITIAL_EMAIL and ADMIN_INITIAL_PASSWORD",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateSeed(); err != nil {
				return err
			}
			log := logging.New(cfg.LogOptions())
			slog.SetDefault(log)
			ctx := cmd.Context()

			gdb, r, err := openDB(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			auditLog := audit.NewLogger(log, audit.DBSink{Repo: r})
			defer auditLog.Close()

			admin := &service.AdminService{
				Repo:     r,
				Ledger:   &service.LedgerService{Repo: r, Audit: auditLog},
				Audit:    auditLog,
				HashCost: cfg.BcryptCost,
			}
			acct, created, err := admin.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, credits)
			if err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			if created {
				log.Info("admin_created", "account_id", acct.ID, "email", acct.Email, "credits", credits)
			} else {
				log.Info("admin_exists", "account_id", acct.ID, "email", acct.Email)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&credits, "credits", service.DefaultAdminCredits, "initial credits for a newly created admin")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateMigrate(); err != nil {
				return err
			}
			log := logging.New(cfg.LogOptions())
			gdb, _, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			return db.Close(gdb)
		},
	}
}
