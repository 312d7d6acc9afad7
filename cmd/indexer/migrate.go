package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/config"
	"escrowScope/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate needs the postgres store, got %q", cfg.Store)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	applied, err := postgres.Migrate(cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if applied {
		logger.Info("migrations applied", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	} else {
		logger.Info("schema up to date", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	}
	return nil
}
