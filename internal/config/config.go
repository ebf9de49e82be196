package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vinflip/internal/evm"
)

// Currency describes the chain's native currency, as wallets expect it in
// wallet_addEthereumChain.
type Currency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// ChainConfig identifies the target network and the deployed contracts.
type ChainConfig struct {
	ChainID      uint64      `yaml:"chain_id"`
	Name         string      `yaml:"name"`
	RPCURLs      []string    `yaml:"rpc_urls"`
	WSURL        string      `yaml:"ws_url"`
	Currency     Currency    `yaml:"currency"`
	ExplorerURL  string      `yaml:"explorer_url"`
	GameAddress  evm.Address `yaml:"game_address"`
	TokenAddress evm.Address `yaml:"token_address"`
}

// DefaultVinuChain is the VinuChain mainnet the game is deployed on.
func DefaultVinuChain() ChainConfig {
	return ChainConfig{
		ChainID: 207,
		Name:    "VinuChain",
		RPCURLs: []string{"https://rpc.vinuchain.org"},
		WSURL:   "wss://rpc.vinuchain.org/ws",
		Currency: Currency{
			Name:     "VinuChain",
			Symbol:   "VC",
			Decimals: 18,
		},
		ExplorerURL: "https://vinuexplorer.org",
	}
}

// Validate checks the config is complete enough to run against.
func (c ChainConfig) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("at least one rpc_url is required")
	}
	if !evm.IsValidAddress(string(c.GameAddress)) {
		return fmt.Errorf("game_address %q is not a valid address", c.GameAddress)
	}
	if !evm.IsValidAddress(string(c.TokenAddress)) {
		return fmt.Errorf("token_address %q is not a valid address", c.TokenAddress)
	}
	return nil
}

// LoadChainConfig reads a chain config YAML file, layered over the VinuChain
// defaults so a minimal file only needs the contract addresses.
func LoadChainConfig(path string) (ChainConfig, error) {
	cfg := DefaultVinuChain()

	data, err := os.ReadFile(path)
	if err != nil {
		return ChainConfig{}, fmt.Errorf("read chain config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ChainConfig{}, fmt.Errorf("parse chain config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return ChainConfig{}, fmt.Errorf("validate chain config: %w", err)
	}
	return cfg, nil
}
