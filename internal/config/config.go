package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel          string
	Store             string
	PGDSN             string
	PGMaxConns        int32
	HTTPHost          string
	HTTPPort          int
	ReconcileInterval time.Duration

	Solana   SolanaConfig
	Base     BaseConfig
	Dispute  DisputeConfig
	Listener ListenerConfig
}

type SolanaConfig struct {
	Enabled    bool
	Network    string
	RPCURL     string
	WSURL      string
	ProgramID  string
	Keypair    string
	RPS        int
	Commitment string
}

type BaseConfig struct {
	Enabled       bool
	Network       string
	ChainID       int64
	RPCURL        string
	WSURL         string
	Contract      string
	PrivateKey    string
	Confirmations uint64
	PollInterval  time.Duration
	BatchSize     uint64
	StartBlock    uint64
}

type DisputeConfig struct {
	Enabled         bool
	Interval        time.Duration
	Threshold       float64
	ReasonerURL     string
	ReasonerTimeout time.Duration
	MaxFailures     int
	Batch           int
	ResolverTimeout time.Duration
}

type ListenerConfig struct {
	Workers       int
	Queue         int
	MaxRetries    int
	RetryBackoff  time.Duration
	MaxBackoff    time.Duration
	CursorEnabled bool
	CursorFile    string
	Journal       string
}

// Addr is the REST bind address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ESCROW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("store", "postgres")
	v.SetDefault("pg-max-conns", 10)
	v.SetDefault("http-host", "0.0.0.0")
	v.SetDefault("http-port", 8080)
	v.SetDefault("reconcile-interval", time.Hour)

	v.SetDefault("solana-enabled", true)
	v.SetDefault("solana-network", NetworkDevnet)
	v.SetDefault("solana-program-id", DefaultSolanaProgramID)
	v.SetDefault("solana-rps", 10)
	v.SetDefault("solana-commitment", "confirmed")

	v.SetDefault("base-enabled", true)
	v.SetDefault("base-network", NetworkSepolia)
	v.SetDefault("base-confirmations", uint64(3))
	v.SetDefault("base-poll-interval", 5*time.Second)
	v.SetDefault("base-batch-size", uint64(2000))

	v.SetDefault("dispute-enabled", false)
	v.SetDefault("dispute-interval", 30*time.Second)
	v.SetDefault("dispute-threshold", 0.7)
	v.SetDefault("dispute-reasoner-timeout", 60*time.Second)
	v.SetDefault("dispute-max-failures", 5)
	v.SetDefault("dispute-batch", 20)
	v.SetDefault("resolver-timeout", 2*time.Minute)

	v.SetDefault("listener-workers", 8)
	v.SetDefault("listener-queue", 256)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("max-backoff", 30*time.Second)
	v.SetDefault("cursor-enabled", true)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:          v.GetString("log-level"),
		Store:             strings.ToLower(v.GetString("store")),
		PGDSN:             v.GetString("pg-dsn"),
		PGMaxConns:        v.GetInt32("pg-max-conns"),
		HTTPHost:          v.GetString("http-host"),
		HTTPPort:          v.GetInt("http-port"),
		ReconcileInterval: v.GetDuration("reconcile-interval"),
		Solana: SolanaConfig{
			Enabled:    v.GetBool("solana-enabled"),
			Network:    strings.ToLower(v.GetString("solana-network")),
			RPCURL:     v.GetString("solana-rpc"),
			WSURL:      v.GetString("solana-ws"),
			ProgramID:  v.GetString("solana-program-id"),
			Keypair:    v.GetString("solana-keypair"),
			RPS:        v.GetInt("solana-rps"),
			Commitment: v.GetString("solana-commitment"),
		},
		Base: BaseConfig{
			Enabled:       v.GetBool("base-enabled"),
			Network:       strings.ToLower(v.GetString("base-network")),
			RPCURL:        v.GetString("base-rpc"),
			WSURL:         v.GetString("base-ws"),
			Contract:      v.GetString("base-contract"),
			PrivateKey:    v.GetString("base-private-key"),
			Confirmations: v.GetUint64("base-confirmations"),
			PollInterval:  v.GetDuration("base-poll-interval"),
			BatchSize:     v.GetUint64("base-batch-size"),
			StartBlock:    v.GetUint64("base-start-block"),
		},
		Dispute: DisputeConfig{
			Enabled:         v.GetBool("dispute-enabled"),
			Interval:        v.GetDuration("dispute-interval"),
			Threshold:       v.GetFloat64("dispute-threshold"),
			ReasonerURL:     v.GetString("dispute-reasoner-url"),
			ReasonerTimeout: v.GetDuration("dispute-reasoner-timeout"),
			MaxFailures:     v.GetInt("dispute-max-failures"),
			Batch:           v.GetInt("dispute-batch"),
			ResolverTimeout: v.GetDuration("resolver-timeout"),
		},
		Listener: ListenerConfig{
			Workers:       v.GetInt("listener-workers"),
			Queue:         v.GetInt("listener-queue"),
			MaxRetries:    v.GetInt("max-retries"),
			RetryBackoff:  v.GetDuration("retry-backoff"),
			MaxBackoff:    v.GetDuration("max-backoff"),
			CursorEnabled: v.GetBool("cursor-enabled"),
			CursorFile:    v.GetString("cursor-file"),
			Journal:       v.GetString("journal"),
		},
	}

	if err := applyNetworks(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (postgres|memory)", c.Store)
	}
	if c.Dispute.Threshold < 0 || c.Dispute.Threshold > 1 {
		return fmt.Errorf("dispute-threshold %v must be within [0,1]", c.Dispute.Threshold)
	}
	if c.Dispute.Enabled && c.Dispute.ReasonerURL == "" {
		return fmt.Errorf("dispute-reasoner-url is required when the dispute coordinator is enabled")
	}
	return nil
}

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339). An
// empty input is the zero time.
func ParseTimestamp(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return time.Time{}, err
	}
	return tm.UTC(), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
