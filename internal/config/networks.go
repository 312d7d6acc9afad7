package config

import (
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
)

// Network discriminants.
const (
	NetworkMainnet = "mainnet"
	NetworkDevnet  = "devnet"
	NetworkSepolia = "sepolia"
)

// DefaultSolanaProgramID is the deployed escrow program.
const DefaultSolanaProgramID = "8rXSN62qT7hb3DkcYrMmi6osPxak7nhXi2cBGDNbh7Py"

type evmNetwork struct {
	chainID int64
	rpcURL  string
}

var (
	baseNetworks = map[string]evmNetwork{
		NetworkMainnet: {chainID: 8453, rpcURL: "https://mainnet.base.org"},
		NetworkSepolia: {chainID: 84532, rpcURL: "https://sepolia.base.org"},
	}
	solanaNetworks = map[string][2]string{
		NetworkMainnet: {rpc.MainNetBeta_RPC, rpc.MainNetBeta_WS},
		NetworkDevnet:  {rpc.DevNet_RPC, rpc.DevNet_WS},
	}
)

// applyNetworks fills endpoints and the EVM chain id from the network
// discriminants. Explicit endpoints win.
func applyNetworks(cfg *Config) error {
	if cfg.Base.Enabled {
		net, ok := baseNetworks[cfg.Base.Network]
		if !ok {
			return fmt.Errorf("unknown base-network %q (mainnet|sepolia)", cfg.Base.Network)
		}
		cfg.Base.ChainID = net.chainID
		if cfg.Base.RPCURL == "" && cfg.Base.WSURL == "" {
			cfg.Base.RPCURL = net.rpcURL
		}
	}
	if cfg.Solana.Enabled {
		endpoints, ok := solanaNetworks[cfg.Solana.Network]
		if !ok {
			return fmt.Errorf("unknown solana-network %q (mainnet|devnet)", cfg.Solana.Network)
		}
		if cfg.Solana.RPCURL == "" {
			cfg.Solana.RPCURL = endpoints[0]
		}
		if cfg.Solana.WSURL == "" {
			cfg.Solana.WSURL = endpoints[1]
		}
		if cfg.Solana.ProgramID == "" {
			cfg.Solana.ProgramID = DefaultSolanaProgramID
		}
	}
	return nil
}
