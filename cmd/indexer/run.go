package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/aggregate"
	"escrowScope/internal/api"
	"escrowScope/internal/config"
	"escrowScope/internal/dispute"
	"escrowScope/internal/listener"
	"escrowScope/internal/metrics"
	"escrowScope/internal/projection"
	"escrowScope/internal/storage"
)

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	chs, err := connectChains(cfg, logger)
	if err != nil {
		return err
	}
	defer chs.Close()
	if len(chs.streams) == 0 {
		logger.Warn("no chain enabled, serving the query API only")
	}

	var coordinator *dispute.Coordinator
	if cfg.Dispute.Enabled {
		resolvers, err := chs.resolvers(cfg, logger)
		if err != nil {
			return err
		}
		if len(resolvers) == 0 {
			logger.Warn("dispute coordinator has no signing credentials, rulings stay pending")
		}
		coordinator = dispute.NewCoordinator(dispute.Config{
			Interval:       cfg.Dispute.Interval,
			Threshold:      cfg.Dispute.Threshold,
			Batch:          cfg.Dispute.Batch,
			MaxFailures:    cfg.Dispute.MaxFailures,
			ResolveTimeout: cfg.Dispute.ResolverTimeout,
		}, store, dispute.NewHTTPReasoner(cfg.Dispute.ReasonerURL, cfg.Dispute.ReasonerTimeout, logger.Named("reasoner")),
			resolvers, metrics.NewCoordinator(), logger.Named("dispute"))
	}

	handler, err := api.New(api.Config{Reader: store, Content: store, Logger: logger.Named("api")})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error(name+" stopped", zap.Error(err))
			}
		}()
	}

	projector := projection.NewProjector(store, logger.Named("projection"))
	cursors := cursorStore(cfg, store)
	journal := storage.NewJournal(cfg.Listener.Journal)
	for _, stream := range chs.streams {
		chain := stream.Chain()
		dispatcher := listener.NewDispatcher(projector, cfg.Listener.Workers, cfg.Listener.Queue, metrics.NewListener(chain), logger.Named(string(chain)))
		defer dispatcher.Close()
		runner := listener.NewRunner(listener.RunConfig{
			CursorEnabled: cfg.Listener.CursorEnabled,
			RetryBackoff:  cfg.Listener.RetryBackoff,
			MaxBackoff:    cfg.Listener.MaxBackoff,
		}, stream, dispatcher, cursors, journal, logger)
		start("listener "+string(chain), runner.Run)
	}
	if coordinator != nil {
		start("dispute coordinator", coordinator.Run)
	}
	start("reconciler", aggregate.NewReconciler(store, cfg.ReconcileInterval, logger.Named("reconcile")).Run)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info("indexer start",
		zap.String("store", cfg.Store),
		zap.Int("chains", len(chs.streams)),
		zap.Bool("dispute_enabled", cfg.Dispute.Enabled),
		zap.Bool("cursor_enabled", cfg.Listener.CursorEnabled),
		zap.String("journal", cfg.Listener.Journal),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	logger.Info("indexer stopped")
	return runErr
}
