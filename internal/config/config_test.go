package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidateWithRequiredFields(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "listen"
	cfg.Chain.ContractAddress = "0x1111111111111111111111111111111111111111"
	cfg.Matcher.Endpoint = "https://matcher.example.com"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with required fields should validate: %v", err)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "watch"
	cfg.Chain.ContractAddress = "0x1111111111111111111111111111111111111111"
	cfg.Matcher.Endpoint = "https://matcher.example.com"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unknown mode")
	}
	if !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("error should mention the mode: %v", err)
	}
}

func TestValidateRequiresWalletForSettleModes(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Chain.ContractAddress = "0x1111111111111111111111111111111111111111"
	cfg.Matcher.Endpoint = "https://matcher.example.com"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error: settling modes need a signing key")
	}
	if !strings.Contains(err.Error(), "wallet") {
		t.Fatalf("error should mention the wallet: %v", err)
	}

	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Chain.SettlementToken = "0x2222222222222222222222222222222222222222"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("full mode with key and token should validate: %v", err)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "listen"
	cfg.Chain.RPCURL = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"rpc_url", "contract_address", "matcher", "redis"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")
	body := `
mode = "listen"
log_level = "debug"

[chain]
contract_address = "0x1111111111111111111111111111111111111111"

[matcher]
endpoint = "https://matcher.example.com"
timeout = "10s"

[listener]
poll_interval = "3s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "listen" || cfg.LogLevel != "debug" {
		t.Fatalf("top-level fields not merged: mode=%q level=%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Matcher.Timeout.Duration != 10*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.Matcher.Timeout.Duration)
	}
	if cfg.Listener.PollInterval.Duration != 3*time.Second {
		t.Fatalf("listener interval not parsed: %v", cfg.Listener.PollInterval.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Listener.LookbackBlocks != 10 {
		t.Fatalf("default lookback lost: %d", cfg.Listener.LookbackBlocks)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")
	body := `
mode = "listen"

[chain]
contract_address = "0x1111111111111111111111111111111111111111"

[matcher]
endpoint = "https://file.example.com"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DEXBRIDGE_MATCHER_ENDPOINT", "https://env.example.com")
	t.Setenv("DEXBRIDGE_LISTENER_POLL_INTERVAL", "7s")
	t.Setenv("DEXBRIDGE_SETTLEMENT_NOTIFY_FAILURES", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matcher.Endpoint != "https://env.example.com" {
		t.Fatalf("env override lost: %q", cfg.Matcher.Endpoint)
	}
	if cfg.Listener.PollInterval.Duration != 7*time.Second {
		t.Fatalf("env duration override lost: %v", cfg.Listener.PollInterval.Duration)
	}
	if !cfg.Settlement.NotifyFailures {
		t.Fatal("env bool override lost")
	}
}
