package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("ListenAddress = %q, want :8080", cfg.ListenAddress)
	}
	if cfg.Orders.MaxActiveOrders != 10000 || cfg.Orders.MaxExpirationDays != 30 {
		t.Fatalf("order limits = %d/%d, want 10000/30",
			cfg.Orders.MaxActiveOrders, cfg.Orders.MaxExpirationDays)
	}
	if cfg.Timelocks.Source.CancellationSeconds != 10800 {
		t.Fatalf("source cancellation = %d, want 10800", cfg.Timelocks.Source.CancellationSeconds)
	}
	if cfg.Timelocks.Destination.CancellationSeconds != 5400 {
		t.Fatalf("destination cancellation = %d, want 5400", cfg.Timelocks.Destination.CancellationSeconds)
	}

	// Loading the written file again round-trips.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress || again.Orders != cfg.Orders || again.Timelocks != cfg.Timelocks {
		t.Fatalf("reloaded config differs from the default")
	}
}

func TestLoadAppliesPartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
ListenAddress = ":9090"
DataDir = "/tmp/crosslock"

[orders]
MaxExpirationDays = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("ListenAddress = %q, want :9090", cfg.ListenAddress)
	}
	if cfg.Orders.MaxExpirationDays != 7 {
		t.Fatalf("MaxExpirationDays = %d, want 7", cfg.Orders.MaxExpirationDays)
	}
	// Unset fields fall back to defaults.
	if cfg.Orders.MaxActiveOrders != 10000 {
		t.Fatalf("MaxActiveOrders = %d, want default 10000", cfg.Orders.MaxActiveOrders)
	}
	if cfg.Timelocks.Source.WithdrawalSeconds != 3600 {
		t.Fatalf("source withdrawal = %d, want default 3600", cfg.Timelocks.Source.WithdrawalSeconds)
	}
}

func TestLoadRejectsInvalidTimelocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
ListenAddress = ":8080"
DataDir = "./data"

[timelocks.source]
WithdrawalSeconds = 7200
PublicWithdrawalSeconds = 3600
CancellationSeconds = 10800
PublicCancellationSeconds = 14400
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("non-monotonic timelock stages must be rejected")
	}
}

func TestValidateRejectsUnknownPausedModule(t *testing.T) {
	cfg := &Config{ListenAddress: ":8080", PausedModules: []string{"order", "lending"}}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown paused module accepted")
	}
	cfg.PausedModules = []string{"order", "escrow"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("known paused modules rejected: %v", err)
	}
}

func TestValidateRejectsEmptyListenAddress(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("empty listen address must be rejected")
	}
}

func TestStageDurationConversion(t *testing.T) {
	cfg := &Config{ListenAddress: ":8080"}
	cfg.applyDefaults()
	src := cfg.SourceDurations()
	if src.Withdrawal != 3600 || src.PublicCancellation != 14400 {
		t.Fatalf("source durations = %+v, want defaults", src)
	}
	dst := cfg.DestinationDurations()
	if dst.Withdrawal != 1800 || dst.PublicCancellation != 7200 {
		t.Fatalf("destination durations = %+v, want defaults", dst)
	}
}
