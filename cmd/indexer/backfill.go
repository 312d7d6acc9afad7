package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/config"
	"escrowScope/internal/listener"
	"escrowScope/internal/metrics"
	"escrowScope/internal/model"
	"escrowScope/internal/projection"
	"escrowScope/internal/storage"
)

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBackfill(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	chs, err := connectChains(cfg.Config, logger)
	if err != nil {
		return err
	}
	defer chs.Close()
	if len(chs.streams) != 1 {
		return fmt.Errorf("chain %s is not configured", cfg.Chain)
	}
	stream := chs.streams[0]

	rng := listener.Range{From: cfg.From, To: cfg.To, Until: cfg.Until}
	if cfg.Chain == model.ChainSolana && rng.Until == "" && rng.From == 0 {
		cur, ok, err := cursorStore(cfg.Config, store).LoadCursor(ctx, string(cfg.Chain))
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok {
			rng.Until = cur.Ref
		}
	}

	projector := projection.NewProjector(store, logger.Named("projection"))
	dispatcher := listener.NewDispatcher(projector, cfg.Listener.Workers, cfg.Listener.Queue, metrics.NewListener(cfg.Chain), logger)
	defer dispatcher.Close()
	runner := listener.NewRunner(listener.RunConfig{}, stream, dispatcher, nil, storage.NewJournal(cfg.Listener.Journal), logger)

	logger.Info("backfill start",
		zap.String("chain", string(cfg.Chain)),
		zap.Uint64("from", rng.From),
		zap.Uint64("to", rng.To),
		zap.String("until", rng.Until),
	)
	started := time.Now()
	if err := runner.Backfill(ctx, rng); err != nil {
		return fmt.Errorf("backfill %s: %w", cfg.Chain, err)
	}
	logger.Info("backfill complete", zap.Duration("elapsed", time.Since(started)))
	return nil
}
