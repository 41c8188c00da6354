// Package config loads and validates the bot's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sileniced/bntradebot/internal/exchange"
)

// Config is the full bot configuration.
type Config struct {
	Pairs      []string         `yaml:"pairs"`
	Intervals  []string         `yaml:"intervals"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Cache      CacheConfig      `yaml:"cache"`
	Database   DatabaseConfig   `yaml:"database"`
	Cycle      CycleConfig      `yaml:"cycle"`
	Trading    TradingConfig    `yaml:"trading"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Allocation AllocationConfig `yaml:"allocation"`
}

// ExchangeConfig holds exchange connectivity settings. API credentials come
// from the environment, never from the file.
type ExchangeConfig struct {
	BaseURL        string  `yaml:"base_url"`
	StreamURL      string  `yaml:"stream_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// Timeout returns the HTTP timeout as a duration.
func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// CacheConfig holds Redis settings. Enabled=false bypasses the cache layer.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Addr             string `yaml:"addr"`
	Password         string `yaml:"-"`
	DB               int    `yaml:"db"`
	CandleTTLSeconds int    `yaml:"candle_ttl_seconds"`
	PriceTTLSeconds  int    `yaml:"price_ttl_seconds"`
}

// DatabaseConfig holds PostgreSQL settings. Enabled=false runs the bot
// without persistence: weights start fresh each run.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DSN            string `yaml:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CycleConfig controls the analysis loop.
type CycleConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	CandleLimit     int `yaml:"candle_limit"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	FetchTimeoutSec int `yaml:"fetch_timeout_seconds"`
}

// Interval returns the loop period as a duration.
func (c CycleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// FetchTimeout returns the per-fetch deadline as a duration.
func (c CycleConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// TradingConfig controls order generation.
type TradingConfig struct {
	DryRun         bool    `yaml:"dry_run"`
	DustBtc        float64 `yaml:"dust_btc"`
	DropEqualFunds bool    `yaml:"drop_equal_funds"`
}

// HTTPConfig controls the status HTTP server.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AllocationConfig points at the blend-weights file.
type AllocationConfig struct {
	WeightsFile string `yaml:"weights_file"`
}

// Default returns the configuration the bot runs with when no file is given.
func Default() Config {
	return Config{
		Pairs:     []string{"ETHBTC", "LTCBTC", "BNBBTC"},
		Intervals: []string{"5m", "15m", "1h", "4h", "1d"},
		Exchange: ExchangeConfig{
			TimeoutSeconds: 10,
			RequestsPerSec: 20,
			Burst:          60,
		},
		Cache: CacheConfig{
			Addr:             "localhost:6379",
			CandleTTLSeconds: 60,
			PriceTTLSeconds:  10,
		},
		Database: DatabaseConfig{
			TimeoutSeconds: 5,
		},
		Cycle: CycleConfig{
			IntervalSeconds: 300,
			CandleLimit:     200,
			MaxConcurrent:   8,
			FetchTimeoutSec: 15,
		},
		Trading: TradingConfig{
			DryRun:  true,
			DustBtc: 1e-6,
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads path (optional), overlays it on Default, pulls secrets from the
// environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Exchange.APIKey = os.Getenv("BINANCE_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("BINANCE_API_SECRET")
	cfg.Cache.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Database.DSN = os.Getenv("DATABASE_URL")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the bot cannot run with.
func (c Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: no pairs configured")
	}
	if len(c.Intervals) == 0 {
		return fmt.Errorf("config: no intervals configured")
	}
	for _, iv := range c.Intervals {
		if _, err := exchange.Interval(iv).Duration(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.Cycle.IntervalSeconds <= 0 {
		return fmt.Errorf("config: cycle interval must be positive")
	}
	if c.Cycle.CandleLimit < 30 {
		return fmt.Errorf("config: candle limit %d too small for the indicator lookbacks", c.Cycle.CandleLimit)
	}
	if c.Cycle.MaxConcurrent <= 0 {
		return fmt.Errorf("config: max_concurrent must be positive")
	}
	if c.Trading.DustBtc < 0 {
		return fmt.Errorf("config: dust_btc must not be negative")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("config: database enabled but DATABASE_URL not set")
	}
	return nil
}

// ParsedIntervals returns the configured intervals as exchange types.
func (c Config) ParsedIntervals() []exchange.Interval {
	out := make([]exchange.Interval, 0, len(c.Intervals))
	for _, iv := range c.Intervals {
		out = append(out, exchange.Interval(iv))
	}
	return out
}
