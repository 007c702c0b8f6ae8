package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"crosslock/native/common"
	"crosslock/native/escrow"
)

type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	DataDir       string   `toml:"DataDir"`
	NetworkName   string   `toml:"NetworkName"`
	PausedModules []string `toml:"PausedModules,omitempty"`

	Orders    OrdersConfig    `toml:"orders"`
	Timelocks TimelocksConfig `toml:"timelocks"`
}

type OrdersConfig struct {
	MaxActiveOrders   int `toml:"MaxActiveOrders"`
	MaxExpirationDays int `toml:"MaxExpirationDays"`
}

// TimelocksConfig holds stage durations in seconds, counted from escrow
// deployment. Zero fields fall back to the built-in defaults.
type TimelocksConfig struct {
	MinStageSeconds         int64          `toml:"MinStageSeconds"`
	CrossChainBufferSeconds int64          `toml:"CrossChainBufferSeconds"`
	Source                  DurationsEntry `toml:"source"`
	Destination             DurationsEntry `toml:"destination"`
}

type DurationsEntry struct {
	WithdrawalSeconds         int64 `toml:"WithdrawalSeconds"`
	PublicWithdrawalSeconds   int64 `toml:"PublicWithdrawalSeconds"`
	CancellationSeconds       int64 `toml:"CancellationSeconds"`
	PublicCancellationSeconds int64 `toml:"PublicCancellationSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "crosslock-local"
	}
	if c.Orders.MaxActiveOrders == 0 {
		c.Orders.MaxActiveOrders = 10000
	}
	if c.Orders.MaxExpirationDays == 0 {
		c.Orders.MaxExpirationDays = 30
	}
	if c.Timelocks.MinStageSeconds == 0 {
		c.Timelocks.MinStageSeconds = int64(escrow.DefaultMinStage.Seconds())
	}
	if c.Timelocks.CrossChainBufferSeconds == 0 {
		c.Timelocks.CrossChainBufferSeconds = int64(escrow.DefaultCrossChainBuffer.Seconds())
	}
	if (c.Timelocks.Source == DurationsEntry{}) {
		c.Timelocks.Source = fromDurations(escrow.DefaultSourceDurations())
	}
	if (c.Timelocks.Destination == DurationsEntry{}) {
		c.Timelocks.Destination = fromDurations(escrow.DefaultDestinationDurations())
	}
}

// Validate rejects configurations the engines would refuse at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if c.Orders.MaxActiveOrders < 0 {
		return fmt.Errorf("orders.MaxActiveOrders must not be negative")
	}
	if c.Orders.MaxExpirationDays < 1 {
		return fmt.Errorf("orders.MaxExpirationDays must be at least 1")
	}
	for _, module := range c.PausedModules {
		if !common.KnownModule(strings.TrimSpace(module)) {
			return fmt.Errorf("PausedModules: unknown module %q (known: %s)", module, strings.Join(common.Modules(), ", "))
		}
	}
	for name, entry := range map[string]DurationsEntry{
		"timelocks.source":      c.Timelocks.Source,
		"timelocks.destination": c.Timelocks.Destination,
	} {
		if entry.WithdrawalSeconds <= 0 ||
			entry.PublicWithdrawalSeconds <= entry.WithdrawalSeconds ||
			entry.CancellationSeconds <= entry.PublicWithdrawalSeconds ||
			entry.PublicCancellationSeconds <= entry.CancellationSeconds {
			return fmt.Errorf("%s stages must be positive and strictly increasing", name)
		}
	}
	return nil
}

// SourceDurations returns the configured source-leg stage offsets.
func (c *Config) SourceDurations() escrow.StageDurations {
	return toDurations(c.Timelocks.Source)
}

// DestinationDurations returns the configured destination-leg stage offsets.
func (c *Config) DestinationDurations() escrow.StageDurations {
	return toDurations(c.Timelocks.Destination)
}

func fromDurations(d escrow.StageDurations) DurationsEntry {
	return DurationsEntry{
		WithdrawalSeconds:         d.Withdrawal,
		PublicWithdrawalSeconds:   d.PublicWithdrawal,
		CancellationSeconds:       d.Cancellation,
		PublicCancellationSeconds: d.PublicCancellation,
	}
}

func toDurations(e DurationsEntry) escrow.StageDurations {
	return escrow.StageDurations{
		Withdrawal:         e.WithdrawalSeconds,
		PublicWithdrawal:   e.PublicWithdrawalSeconds,
		Cancellation:       e.CancellationSeconds,
		PublicCancellation: e.PublicCancellationSeconds,
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./crosslock-data",
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
