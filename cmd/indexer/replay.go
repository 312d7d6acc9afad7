package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/config"
	"escrowScope/internal/listener"
	"escrowScope/internal/model"
	"escrowScope/internal/projection"
	"escrowScope/internal/storage"
)

const replayBatch = 500

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	since, err := config.ParseTimestamp(cfg.Since)
	if err != nil {
		return fmt.Errorf("parse since: %w", err)
	}
	errorsPath, _ := cmd.Flags().GetString("errors")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	var errWriter *jsonlWriter
	if errorsPath != "" {
		errWriter, err = newJSONLWriter(errorsPath, false)
		if err != nil {
			return err
		}
		defer errWriter.Close()
	}

	dispatcher := listener.NewDispatcher(projection.NewProjector(store, logger.Named("projection")), cfg.Listener.Workers, 0, nil, logger)
	defer dispatcher.Close()

	logger.Info("replay start", zap.String("in", cfg.In), zap.Time("since", since))

	var (
		total, skipped, failed int
		applyErrs              int
		batch                  []model.Event
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := dispatcher.Apply(ctx, batch); err != nil {
			applyErrs++
			logger.Warn("replay batch applied with errors", zap.Error(err))
		}
		batch = batch[:0]
	}

	err = storage.ReadJournal(ctx, inputFile, func(ev model.Event) error {
		total++
		if !since.IsZero() && ev.Meta().Timestamp.Before(since) {
			skipped++
			return nil
		}
		batch = append(batch, ev)
		if len(batch) >= replayBatch {
			flush()
		}
		return nil
	}, func(line int, err error) {
		failed++
		logger.Warn("skip unreadable journal line", zap.Int("line", line), zap.Error(err))
		writeReplayError(errWriter, line, err)
	})
	if err != nil {
		return err
	}
	flush()

	logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("batches_with_errors", applyErrs),
	)
	return nil
}

type replayError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func writeReplayError(writer *jsonlWriter, line int, err error) {
	if writer == nil {
		return
	}
	_ = writer.Write(replayError{Line: line, Error: err.Error()})
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
