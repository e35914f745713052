// Package config loads the server settings from an optional file and RIBON_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/shop"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPPort  string          `mapstructure:"http_port"`
	LogLevel  string          `mapstructure:"log_level"`
	Store     StoreConfig     `mapstructure:"store"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
}

type StoreConfig struct {
	Driver          string `mapstructure:"driver"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
	BadgerPath      string `mapstructure:"badger_path"` // empty keeps the store in memory
	Seed            bool   `mapstructure:"seed"`
}

type InventoryConfig struct {
	MaxAttempts            int     `mapstructure:"max_attempts"`
	LowStockThreshold      float64 `mapstructure:"low_stock_threshold"`
	CriticalStockThreshold float64 `mapstructure:"critical_stock_threshold"`
}

// LedgerConfig controls the CometBFT audit ledger
type LedgerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	CometHome string        `mapstructure:"cmt_home"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AlertsConfig enables mail alerts when an API key is set
type AlertsConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	To             string `mapstructure:"to"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "5000")
	v.SetDefault("log_level", "info")

	v.SetDefault("store.driver", DriverBadger)
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.connect_attempts", 10)
	v.SetDefault("store.badger_path", "./data/badger")
	v.SetDefault("store.seed", true)

	v.SetDefault("inventory.max_attempts", 3)
	v.SetDefault("inventory.low_stock_threshold", 100)
	v.SetDefault("inventory.critical_stock_threshold", 50)

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.cmt_home", "./node-config/ribon-node")
	v.SetDefault("ledger.timeout", 10*time.Second)

	v.SetDefault("alerts.sendgrid_api_key", "")
	v.SetDefault("alerts.from", "")
	v.SetDefault("alerts.to", "")
}

// Load reads path (when not empty) and the environment, in that order of precedence
// below the environment. RIBON_STORE_DRIVER overrides store.driver.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RIBON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration data: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverBadger:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Inventory.MaxAttempts < 1 {
		return fmt.Errorf("inventory.max_attempts must be at least 1")
	}
	if c.Inventory.CriticalStockThreshold > c.Inventory.LowStockThreshold {
		return fmt.Errorf("inventory.critical_stock_threshold must not exceed low_stock_threshold")
	}
	if c.Ledger.Enabled && c.Ledger.CometHome == "" {
		return fmt.Errorf("ledger.cmt_home is required when the ledger is enabled")
	}
	return nil
}

func (c InventoryConfig) Service() inventory.Config {
	return inventory.Config{
		MaxAttempts:       c.MaxAttempts,
		CriticalThreshold: decimal.NewFromFloat(c.CriticalStockThreshold),
	}
}

func (c InventoryConfig) Shop() shop.Config {
	return shop.Config{
		LowStockThreshold:      decimal.NewFromFloat(c.LowStockThreshold),
		CriticalStockThreshold: decimal.NewFromFloat(c.CriticalStockThreshold),
	}
}
