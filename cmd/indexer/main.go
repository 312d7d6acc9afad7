package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Solana and Base escrow indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run listeners, the query API and the dispute coordinator",
		RunE:  runIndexer,
	}
	addStoreFlags(runCmd.Flags())
	addChainFlags(runCmd.Flags())
	addListenerFlags(runCmd.Flags())
	runCmd.Flags().String("http-host", "0.0.0.0", "REST bind host")
	runCmd.Flags().Int("http-port", 8080, "REST bind port")
	runCmd.Flags().Bool("dispute-enabled", false, "enable the dispute coordinator")
	runCmd.Flags().Duration("dispute-interval", 30*time.Second, "pending dispute poll interval")
	runCmd.Flags().Float64("dispute-threshold", 0.7, "minimum reasoner confidence to submit a ruling")
	runCmd.Flags().String("dispute-reasoner-url", "", "reasoning service endpoint")
	runCmd.Flags().Duration("dispute-reasoner-timeout", 60*time.Second, "reasoning request timeout")
	runCmd.Flags().Int("dispute-max-failures", 5, "submission failures before a dispute needs attention")
	runCmd.Flags().Int("dispute-batch", 20, "pending disputes per cycle")
	runCmd.Flags().Duration("resolver-timeout", 2*time.Minute, "settlement confirmation timeout")
	runCmd.Flags().String("solana-keypair", "", "arbitrator keypair file (solana-keygen JSON)")
	runCmd.Flags().String("base-private-key", "", "arbitrator private key (hex)")
	runCmd.Flags().Duration("reconcile-interval", time.Hour, "agent stats rebuild interval, 0 disables")
	root.AddCommand(runCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Scan historical events of one chain into the store",
		RunE:  runBackfill,
	}
	addStoreFlags(backfillCmd.Flags())
	addChainFlags(backfillCmd.Flags())
	addListenerFlags(backfillCmd.Flags())
	backfillCmd.Flags().String("chain", "", "chain to backfill (solana|base)")
	backfillCmd.Flags().Uint64("from", 0, "base: first block; solana: oldest slot")
	backfillCmd.Flags().Uint64("to", 0, "base: last block, 0 means confirmed head; solana: newest slot")
	backfillCmd.Flags().String("until", "", "solana: newest signature already applied (defaults to the stored cursor)")
	_ = backfillCmd.MarkFlagRequired("chain")
	root.AddCommand(backfillCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply a journaled canonical event file",
		RunE:  runReplay,
	}
	addStoreFlags(replayCmd.Flags())
	replayCmd.Flags().String("in", "", "input events JSONL")
	replayCmd.Flags().String("since", "", "skip events before this time (unix seconds or RFC3339)")
	replayCmd.Flags().String("errors", "", "optional JSONL file for unreadable lines")
	replayCmd.Flags().Int("listener-workers", 8, "apply workers")
	root.AddCommand(replayCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild agent stats from escrow rows",
		RunE:  runReconcile,
	}
	addStoreFlags(reconcileCmd.Flags())
	root.AddCommand(reconcileCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print escrow analytics as a table",
		RunE:  runStats,
	}
	addStoreFlags(statsCmd.Flags())
	statsCmd.Flags().Int("weeks", 8, "weekly trend buckets")
	statsCmd.Flags().Int("top", 10, "top agents by volume")
	root.AddCommand(statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(fs *pflag.FlagSet) {
	fs.String("store", "postgres", "projection store (postgres|memory)")
	fs.String("pg-dsn", "", "Postgres DSN")
	fs.Int32("pg-max-conns", 10, "Postgres pool size")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addChainFlags(fs *pflag.FlagSet) {
	fs.Bool("solana-enabled", true, "index the Solana program")
	fs.String("solana-network", "devnet", "solana network (mainnet|devnet)")
	fs.String("solana-rpc", "", "Solana RPC URL (defaults per network)")
	fs.String("solana-ws", "", "Solana websocket URL (defaults per network)")
	fs.String("solana-program-id", "", "escrow program id")
	fs.Int("solana-rps", 10, "Solana RPC requests per second, 0 disables limiting")
	fs.String("solana-commitment", "confirmed", "Solana commitment (processed|confirmed|finalized)")
	fs.Bool("base-enabled", true, "index the Base contract")
	fs.String("base-network", "sepolia", "base network (mainnet|sepolia)")
	fs.String("base-rpc", "", "Base RPC URL, ws:// or wss:// subscribes (defaults per network)")
	fs.String("base-ws", "", "Base websocket URL, preferred over base-rpc")
	fs.String("base-contract", "", "escrow contract address")
	fs.Uint64("base-confirmations", 3, "blocks behind head treated as confirmed")
	fs.Duration("base-poll-interval", 5*time.Second, "head poll interval over HTTP")
	fs.Uint64("base-batch-size", 2000, "blocks per eth_getLogs request")
	fs.Uint64("base-start-block", 0, "first block when no cursor exists")
}

func addListenerFlags(fs *pflag.FlagSet) {
	fs.Int("listener-workers", 8, "per-escrow ordered apply workers")
	fs.Int("listener-queue", 256, "queue size per worker")
	fs.Int("max-retries", 5, "maximum retry attempts per RPC call")
	fs.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fs.Duration("max-backoff", 30*time.Second, "maximum reconnect backoff")
	fs.Bool("cursor-enabled", true, "persist and resume from listener cursors")
	fs.String("cursor-file", "", "keep cursors in this file instead of the store")
	fs.String("journal", "", "append decoded events to this JSONL file")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
