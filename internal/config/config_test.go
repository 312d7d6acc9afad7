package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"escrowScope/internal/model"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaultsFollowNetworks(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ESCROW_STORE", "memory")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Base.ChainID != 84532 || cfg.Base.RPCURL != "https://sepolia.base.org" {
		t.Fatalf("base defaults = %+v", cfg.Base)
	}
	if cfg.Solana.RPCURL != "https://api.devnet.solana.com" || cfg.Solana.ProgramID != DefaultSolanaProgramID {
		t.Fatalf("solana defaults = %+v", cfg.Solana)
	}
	if cfg.Dispute.Threshold != 0.7 || cfg.Dispute.Enabled {
		t.Fatalf("dispute defaults = %+v", cfg.Dispute)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ESCROW_PG_DSN", "postgres://u:p@localhost/escrow")
	t.Setenv("ESCROW_BASE_NETWORK", "mainnet")
	t.Setenv("ESCROW_DISPUTE_ENABLED", "true")
	t.Setenv("ESCROW_DISPUTE_REASONER_URL", "http://reasoner:9000/decide")

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Duration("dispute-interval", 30*time.Second, "")
	flags.String("base-rpc", "", "")
	if err := flags.Parse([]string{"--dispute-interval=5s", "--base-rpc=http://127.0.0.1:8545"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store != StorePostgres || cfg.PGDSN == "" {
		t.Fatalf("store = %q dsn = %q", cfg.Store, cfg.PGDSN)
	}
	if cfg.Base.ChainID != 8453 || cfg.Base.RPCURL != "http://127.0.0.1:8545" {
		t.Fatalf("base = %+v", cfg.Base)
	}
	if !cfg.Dispute.Enabled || cfg.Dispute.Interval != 5*time.Second {
		t.Fatalf("dispute = %+v", cfg.Dispute)
	}
}

func TestLoadConfigFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "escrow.yaml")
	body := "store: memory\nsolana-network: mainnet\nlistener-workers: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Solana.RPCURL != "https://api.mainnet-beta.solana.com" || cfg.Listener.Workers != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without dsn", env: map[string]string{"ESCROW_STORE": "postgres"}},
		{name: "unknown store", env: map[string]string{"ESCROW_STORE": "sqlite"}},
		{name: "threshold out of range", env: map[string]string{"ESCROW_STORE": "memory", "ESCROW_DISPUTE_THRESHOLD": "1.5"}},
		{name: "coordinator without reasoner", env: map[string]string{"ESCROW_STORE": "memory", "ESCROW_DISPUTE_ENABLED": "true"}},
		{name: "unknown base network", env: map[string]string{"ESCROW_STORE": "memory", "ESCROW_BASE_NETWORK": "goerli"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load("", nil); err == nil {
				t.Fatalf("Load() expected error")
			}
		})
	}
}

func TestLoadBackfillSelectsChain(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ESCROW_STORE", "memory")
	t.Setenv("ESCROW_BASE_NETWORK", "goerli")

	flags := pflag.NewFlagSet("backfill", pflag.ContinueOnError)
	flags.String("chain", "", "")
	flags.Uint64("from", 0, "")
	flags.Uint64("to", 0, "")
	if err := flags.Parse([]string{"--chain=sol", "--from=100", "--to=200"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := LoadBackfill("", flags)
	if err != nil {
		t.Fatalf("LoadBackfill() error = %v", err)
	}
	if cfg.Chain != model.ChainSolana || cfg.From != 100 || cfg.To != 200 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Base.Enabled {
		t.Fatalf("base should be disabled for a solana backfill")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "", want: time.Time{}},
		{in: "1717243200", want: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		{in: "2024-06-01T14:00:00+02:00", want: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTimestamp(%q) error = %v", tt.in, err)
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
