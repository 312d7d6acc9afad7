package config

import (
	"fmt"

	"github.com/spf13/pflag"

	"escrowScope/internal/model"
)

// BackfillConfig holds configuration for the backfill command.
type BackfillConfig struct {
	Config
	Chain model.Chain
	From  uint64
	To    uint64
	Until string
}

// LoadBackfill merges config file, environment variables, and flags into BackfillConfig.
func LoadBackfill(cfgFile string, flags *pflag.FlagSet) (BackfillConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return BackfillConfig{}, err
	}
	chain, err := model.ParseChain(v.GetString("chain"))
	if err != nil {
		return BackfillConfig{}, fmt.Errorf("chain: %w", err)
	}
	// Only the selected chain needs endpoints.
	v.Set("solana-enabled", chain == model.ChainSolana)
	v.Set("base-enabled", chain == model.ChainBase)

	base, err := fromViper(v)
	if err != nil {
		return BackfillConfig{}, err
	}
	cfg := BackfillConfig{
		Config: base,
		Chain:  chain,
		From:   v.GetUint64("from"),
		To:     v.GetUint64("to"),
		Until:  v.GetString("until"),
	}
	if cfg.To > 0 && cfg.From > cfg.To {
		return BackfillConfig{}, fmt.Errorf("from %d is after to %d", cfg.From, cfg.To)
	}
	return cfg, nil
}

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	Config
	In    string
	Since string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ReplayConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return ReplayConfig{}, err
	}
	cfg := ReplayConfig{
		Config: base,
		In:     v.GetString("in"),
		Since:  v.GetString("since"),
	}
	if cfg.In == "" {
		return ReplayConfig{}, fmt.Errorf("input path is required")
	}
	return cfg, nil
}
