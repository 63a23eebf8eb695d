// Package config defines the top-level configuration for the fill enrichment
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FILLSCOPE_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Providers ProvidersConfig `toml:"providers"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PipelineConfig holds scheduling and batching parameters for the batch jobs
// and queue consumers.
type PipelineConfig struct {
	MeasureInterval     duration `toml:"measure_interval"`
	DeriveInterval      duration `toml:"derive_interval"`
	AttributionInterval duration `toml:"attribution_interval"`
	FeeEnqueueInterval  duration `toml:"fee_enqueue_interval"`
	BatchSize           int      `toml:"batch_size"`
	MaxRetries          int      `toml:"max_retries"`
	RetryDelay          duration `toml:"retry_delay"`

	// Per-job retry budget overrides; zero falls back to MaxRetries.
	MeasureMaxRetries     int `toml:"measure_max_retries"`
	DeriveMaxRetries      int `toml:"derive_max_retries"`
	AttributionMaxRetries int `toml:"attribution_max_retries"`
	FeeEnqueueMaxRetries  int `toml:"fee_enqueue_max_retries"`
}

// JobMaxRetries resolves a per-job retry budget: the override when set,
// otherwise the shared default.
func (p PipelineConfig) JobMaxRetries(override int) int {
	if override > 0 {
		return override
	}
	return p.MaxRetries
}

// ProvidersConfig holds external API endpoints and credentials.
type ProvidersConfig struct {
	CryptoCompareBaseURL string `toml:"cryptocompare_base_url"`
	CryptoCompareAPIKey  string `toml:"cryptocompare_api_key"`
	EthplorerBaseURL     string `toml:"ethplorer_base_url"`
	EthplorerAPIKey      string `toml:"ethplorer_api_key"`
	// RateLimitPerMinute caps outbound price lookups per minute.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// CatalogConfig holds paths to the entity definition and override files.
type CatalogConfig struct {
	DefinitionPaths []string `toml:"definition_paths"`
	OverridesPath   string   `toml:"overrides_path"`
}

// NotifyConfig holds notification channel credentials for operational alerts.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "fillscope",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Pipeline: PipelineConfig{
			MeasureInterval:     duration{30 * time.Second},
			DeriveInterval:      duration{time.Minute},
			AttributionInterval: duration{time.Minute},
			FeeEnqueueInterval:  duration{time.Minute},
			BatchSize:           100,
			MaxRetries:          10,
			RetryDelay:          duration{30 * time.Second},
		},
		Providers: ProvidersConfig{
			CryptoCompareBaseURL: "https://min-api.cryptocompare.com",
			EthplorerBaseURL:     "https://api.ethplorer.io",
			EthplorerAPIKey:      "freekey",
			RateLimitPerMinute:   250,
		},
		Catalog: CatalogConfig{
			DefinitionPaths: []string{"catalog/entities.json"},
			OverridesPath:   "catalog/relayer_overrides.json",
		},
		Notify: NotifyConfig{
			Events: []string{"job_exhausted", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"jobs":      true,
	"consumers": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: jobs, consumers, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Pipeline
	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, "pipeline: batch_size must be >= 1")
	}
	if c.Pipeline.MaxRetries < 1 {
		errs = append(errs, "pipeline: max_retries must be >= 1")
	}
	if c.Pipeline.RetryDelay.Duration < 0 {
		errs = append(errs, "pipeline: retry_delay must not be negative")
	}
	for name, n := range map[string]int{
		"measure_max_retries":     c.Pipeline.MeasureMaxRetries,
		"derive_max_retries":      c.Pipeline.DeriveMaxRetries,
		"attribution_max_retries": c.Pipeline.AttributionMaxRetries,
		"fee_enqueue_max_retries": c.Pipeline.FeeEnqueueMaxRetries,
	} {
		if n < 0 {
			errs = append(errs, fmt.Sprintf("pipeline: %s must not be negative", name))
		}
	}
	for name, d := range map[string]time.Duration{
		"measure_interval":     c.Pipeline.MeasureInterval.Duration,
		"derive_interval":      c.Pipeline.DeriveInterval.Duration,
		"attribution_interval": c.Pipeline.AttributionInterval.Duration,
		"fee_enqueue_interval": c.Pipeline.FeeEnqueueInterval.Duration,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("pipeline: %s must be positive", name))
		}
	}

	// Providers
	if c.Providers.CryptoCompareBaseURL == "" {
		errs = append(errs, "providers: cryptocompare_base_url must not be empty")
	}
	if c.Providers.EthplorerBaseURL == "" {
		errs = append(errs, "providers: ethplorer_base_url must not be empty")
	}
	if c.Providers.RateLimitPerMinute < 1 {
		errs = append(errs, "providers: rate_limit_per_minute must be >= 1")
	}

	// Catalog
	if len(c.Catalog.DefinitionPaths) == 0 {
		errs = append(errs, "catalog: at least one definition path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
