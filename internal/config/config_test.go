package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultVinuChain(t *testing.T) {
	cfg := DefaultVinuChain()

	if cfg.ChainID != 207 {
		t.Errorf("ChainID = %d, want 207", cfg.ChainID)
	}
	if cfg.Currency.Symbol != "VC" || cfg.Currency.Decimals != 18 {
		t.Errorf("currency = %+v", cfg.Currency)
	}
	if len(cfg.RPCURLs) == 0 {
		t.Error("defaults must carry an RPC URL")
	}
}

func TestLoadChainConfig_LayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	content := `
game_address: "0x1111111111111111111111111111111111111111"
token_address: "0x2222222222222222222222222222222222222222"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadChainConfig(path)
	if err != nil {
		t.Fatalf("LoadChainConfig failed: %v", err)
	}
	if cfg.ChainID != 207 {
		t.Errorf("defaults not layered: ChainID = %d", cfg.ChainID)
	}
	if cfg.GameAddress != "0x1111111111111111111111111111111111111111" {
		t.Errorf("GameAddress = %s", cfg.GameAddress)
	}
}

func TestLoadChainConfig_MissingAddressesRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	if err := os.WriteFile(path, []byte("chain_id: 207\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadChainConfig(path); err == nil {
		t.Error("config without contract addresses should fail validation")
	}
}

func TestLoadChainConfig_MissingFile(t *testing.T) {
	if _, err := LoadChainConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}
