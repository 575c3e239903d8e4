// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Venue describes the market-data/execution collaborator for the session.
type Venue struct {
	// Name selects the implementation: "binance" (live) or "replay" (historic).
	Name       string `yaml:"name"`
	QuoteAsset string `yaml:"quote_asset"`
	// APIKey and SecretKey are Fernet tokens; the matching salts feed the
	// password-derived key that decrypts them at startup.
	APIKey        string `yaml:"api_key"`
	APIKeySalt    string `yaml:"api_key_salt"`
	SecretKey     string `yaml:"secret_key"`
	SecretKeySalt string `yaml:"secret_key_salt"`
	Testnet       bool   `yaml:"testnet"`
	// Stream switches tick sourcing from REST polling to a websocket cache.
	Stream bool `yaml:"stream"`
	// ReferenceDir holds per-asset ticker CSVs for the replay venue.
	ReferenceDir string   `yaml:"reference_dir"`
	BannedAssets []string `yaml:"banned_assets"`
}

// Trade groups the tunable knobs of the trading core.
type Trade struct {
	IgnitesToTrigger  int     `yaml:"ignites_to_trigger"`
	StopLoss          float64 `yaml:"stop_loss"`
	TakeProfit        float64 `yaml:"take_profit"`
	UpdateIntervalSec float64 `yaml:"update_interval_sec"`
	MaxPositions      int     `yaml:"max_positions"`
	TreasuryRatio     float64 `yaml:"treasury_ratio"`
	MinimumBuyPrice   float64 `yaml:"minimum_buy_price"`
	DividendRate      float64 `yaml:"dividend_rate"`
}

// UpdateInterval is the poll cadence as a duration.
func (t Trade) UpdateInterval() time.Duration {
	return time.Duration(t.UpdateIntervalSec * float64(time.Second))
}

// Journal configures closed-trade persistence.
type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Venue   Venue   `yaml:"venue"`
	Trade   Trade   `yaml:"trade"`
	Journal Journal `yaml:"journal"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the trading core cannot run with.
func (c *Config) Validate() error {
	if c.Trade.IgnitesToTrigger < 1 {
		return fmt.Errorf("ignites_to_trigger must be at least 1, got %d", c.Trade.IgnitesToTrigger)
	}
	if c.Trade.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1, got %d", c.Trade.MaxPositions)
	}
	if c.Trade.UpdateIntervalSec <= 0 {
		return fmt.Errorf("update_interval_sec must be positive, got %f", c.Trade.UpdateIntervalSec)
	}
	if c.Trade.TreasuryRatio < 0 || c.Trade.TreasuryRatio >= 1 {
		return fmt.Errorf("treasury_ratio must be in [0, 1), got %f", c.Trade.TreasuryRatio)
	}
	if c.Trade.DividendRate < 0 || c.Trade.DividendRate > 1 {
		return fmt.Errorf("dividend_rate must be in [0, 1], got %f", c.Trade.DividendRate)
	}
	if c.Trade.StopLoss >= c.Trade.TakeProfit {
		return fmt.Errorf("stop_loss %f must be below take_profit %f", c.Trade.StopLoss, c.Trade.TakeProfit)
	}
	if c.Venue.QuoteAsset == "" {
		return fmt.Errorf("venue quote_asset is required")
	}
	return nil
}
