// Package common provides shared utilities for the backtest server
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the backtest server
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Feed        FeedConfig    `toml:"feed"`
	Storage     StorageConfig `toml:"storage"`
	Auth        AuthConfig    `toml:"auth"`
	Trading     TradingConfig `toml:"trading"`
	Metrics     MetricsConfig `toml:"metrics"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	Prefix string `toml:"prefix"` // URL prefix for all trade endpoints
}

// FeedConfig holds market-data feed client configuration
type FeedConfig struct {
	BaseURL   string `toml:"base_url"`
	APIToken  string `toml:"api_token"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the per-call feed timeout
func (c *FeedConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// StorageConfig holds the session snapshot store location
type StorageConfig struct {
	Path string `toml:"path"`
}

// AuthConfig holds token authentication configuration
type AuthConfig struct {
	AdminToken string `toml:"admin_token"`
}

// TradingConfig holds matching and suspension policy knobs
type TradingConfig struct {
	// SuspendLimitDays is how many trading days back valuation searches for
	// the last close of a suspended symbol before falling back to cost basis.
	SuspendLimitDays int `toml:"suspend_limit_days"`
	// BlockOnSuspension restores the pre-0.4.6 rule: any suspended holding
	// blocks all trading on the account.
	BlockOnSuspension bool `toml:"block_on_suspension"`
}

// MetricsConfig holds strategy metrics parameters
type MetricsConfig struct {
	RiskFreeRate float64 `toml:"risk_free_rate"`
	AnnualDays   int     `toml:"annual_days"`
	Baseline     string  `toml:"baseline"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:   "0.0.0.0",
			Port:   7080,
			Prefix: "/backtest/api/trade/v0.3",
		},
		Feed: FeedConfig{
			BaseURL:   "http://localhost:3180/api",
			RateLimit: 20,
			Timeout:   "30s",
		},
		Storage: StorageConfig{
			Path: "data/sessions",
		},
		Auth: AuthConfig{
			AdminToken: "dev-admin-token-change-in-production",
		},
		Trading: TradingConfig{
			SuspendLimitDays: 500,
		},
		Metrics: MetricsConfig{
			RiskFreeRate: 0.03,
			AnnualDays:   252,
			Baseline:     "399300.XSHE",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BACKTEST_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("BACKTEST_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("BACKTEST_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("BACKTEST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("BACKTEST_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if url := os.Getenv("BACKTEST_FEED_URL"); url != "" {
		config.Feed.BaseURL = url
	}

	if token := os.Getenv("BACKTEST_FEED_TOKEN"); token != "" {
		config.Feed.APIToken = token
	}

	if token := os.Getenv("BACKTEST_ADMIN_TOKEN"); token != "" {
		config.Auth.AdminToken = token
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
