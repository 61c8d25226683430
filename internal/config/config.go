// Package config loads the ledger configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/microtrade/ledger-engine/internal/id"
	"github.com/microtrade/ledger-engine/internal/logger"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverBlob     = "blob"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Blob backends for DriverBlob.
const (
	BlobFile  = "file"
	BlobRedis = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Store    StoreConfig  `yaml:"store"`
	Redis    RedisConfig  `yaml:"redis"`
	Oracle   OracleConfig `yaml:"oracle"`
	Ledger   LedgerConfig `yaml:"ledger"`
	LogLevel string       `yaml:"log_level"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the trade log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory, blob, sqlite or postgres
	BlobBackend string `yaml:"blob_backend,omitempty"`
	StateFile   string `yaml:"state_file,omitempty"`
	RedisKey    string `yaml:"redis_key,omitempty"`
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// RedisConfig is shared by the redis blob and the quote cache.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// OracleConfig configures price sources. Sources are tried in order:
// configured static prices, the demo crypto table, then Alpha Vantage.
type OracleConfig struct {
	AlphaVantageKey string            `yaml:"alphavantage_key,omitempty"`
	AlphaVantageURL string            `yaml:"alphavantage_url,omitempty"`
	Demo            bool              `yaml:"demo"`
	Prices          map[string]string `yaml:"prices,omitempty"`
	CacheTTL        time.Duration     `yaml:"cache_ttl"`
}

// LedgerConfig contains order and id parameters.
type LedgerConfig struct {
	Fee      string       `yaml:"fee"`
	IDScheme string       `yaml:"id_scheme"`
	Limits   LimitsConfig `yaml:"limits"`
}

// LimitsConfig holds the optional position caps; zero disables.
type LimitsConfig struct {
	MaxPerSymbol string `yaml:"max_per_symbol,omitempty"`
	MaxClassCost string `yaml:"max_class_cost,omitempty"`
}

// Default returns a configuration that runs with no external services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver:      DriverMemory,
			BlobBackend: BlobFile,
			StateFile:   "microtrade_trades_v1.json",
			SQLitePath:  "microtrade.db",
		},
		Oracle: OracleConfig{
			Demo:     true,
			CacheTTL: 30 * time.Second,
		},
		Ledger: LedgerConfig{
			Fee:      "0.25",
			IDScheme: id.SchemeUUID,
		},
		LogLevel: "info",
	}
}

// Load reads path (if non-empty) over Default, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Store.Driver, "LEDGER_STORE")
	set(&c.Store.StateFile, "STATE_FILE")
	set(&c.Store.SQLitePath, "SQLITE_PATH")
	set(&c.Store.DatabaseURL, "DATABASE_URL")
	set(&c.Redis.URL, "REDIS_URL")
	set(&c.Oracle.AlphaVantageKey, "ALPHAVANTAGE_API_KEY")
	set(&c.Ledger.Fee, "LEDGER_FEE")
	set(&c.LogLevel, "LOG_LEVEL")

	// A database URL with no explicit driver means postgres.
	if getenv("DATABASE_URL") != "" && getenv("LEDGER_STORE") == "" && c.Store.Driver == DriverMemory {
		c.Store.Driver = DriverPostgres
	}
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverBlob:
		switch c.Store.BlobBackend {
		case BlobFile, "":
			if c.Store.StateFile == "" {
				return fmt.Errorf("store.state_file is required for the file blob")
			}
		case BlobRedis:
			if c.Redis.URL == "" {
				return fmt.Errorf("redis.url is required for the redis blob")
			}
		default:
			return fmt.Errorf("store.blob_backend must be 'file' or 'redis'")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for sqlite")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, blob, sqlite, postgres")
	}

	if _, err := c.Fee(); err != nil {
		return err
	}
	if _, err := id.NewGenerator(c.Ledger.IDScheme); err != nil {
		return fmt.Errorf("ledger.id_scheme: %w", err)
	}
	if _, _, err := c.Limits(); err != nil {
		return err
	}
	if _, err := c.StaticPrices(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Fee returns the default per-fill fee.
func (c *Config) Fee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Ledger.Fee)
	if err != nil || fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("ledger.fee must be a non-negative number, got %q", c.Ledger.Fee)
	}
	return fee, nil
}

// Limits returns the per-symbol and per-class caps.
func (c *Config) Limits() (maxPerSymbol, maxClassCost decimal.Decimal, err error) {
	maxPerSymbol, err = optionalDecimal("ledger.limits.max_per_symbol", c.Ledger.Limits.MaxPerSymbol)
	if err != nil {
		return
	}
	maxClassCost, err = optionalDecimal("ledger.limits.max_class_cost", c.Ledger.Limits.MaxClassCost)
	return
}

// StaticPrices returns the configured fixed prices.
func (c *Config) StaticPrices() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Oracle.Prices))
	for sym, s := range c.Oracle.Prices {
		p, err := decimal.NewFromString(s)
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("oracle.prices.%s must be a positive number, got %q", sym, s)
		}
		out[sym] = p
	}
	return out, nil
}

func optionalDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil || v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be a non-negative number, got %q", field, s)
	}
	return v, nil
}
