package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FILLSCOPE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FILLSCOPE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FILLSCOPE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FILLSCOPE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FILLSCOPE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FILLSCOPE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FILLSCOPE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FILLSCOPE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FILLSCOPE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FILLSCOPE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FILLSCOPE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FILLSCOPE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FILLSCOPE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FILLSCOPE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FILLSCOPE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FILLSCOPE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FILLSCOPE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FILLSCOPE_REDIS_TLS_ENABLED")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.MeasureInterval, "FILLSCOPE_PIPELINE_MEASURE_INTERVAL")
	setDuration(&cfg.Pipeline.DeriveInterval, "FILLSCOPE_PIPELINE_DERIVE_INTERVAL")
	setDuration(&cfg.Pipeline.AttributionInterval, "FILLSCOPE_PIPELINE_ATTRIBUTION_INTERVAL")
	setDuration(&cfg.Pipeline.FeeEnqueueInterval, "FILLSCOPE_PIPELINE_FEE_ENQUEUE_INTERVAL")
	setInt(&cfg.Pipeline.BatchSize, "FILLSCOPE_PIPELINE_BATCH_SIZE")
	setInt(&cfg.Pipeline.MaxRetries, "FILLSCOPE_PIPELINE_MAX_RETRIES")
	setDuration(&cfg.Pipeline.RetryDelay, "FILLSCOPE_PIPELINE_RETRY_DELAY")
	setInt(&cfg.Pipeline.MeasureMaxRetries, "FILLSCOPE_PIPELINE_MEASURE_MAX_RETRIES")
	setInt(&cfg.Pipeline.DeriveMaxRetries, "FILLSCOPE_PIPELINE_DERIVE_MAX_RETRIES")
	setInt(&cfg.Pipeline.AttributionMaxRetries, "FILLSCOPE_PIPELINE_ATTRIBUTION_MAX_RETRIES")
	setInt(&cfg.Pipeline.FeeEnqueueMaxRetries, "FILLSCOPE_PIPELINE_FEE_ENQUEUE_MAX_RETRIES")

	// ── Providers ──
	setStr(&cfg.Providers.CryptoCompareBaseURL, "FILLSCOPE_PROVIDERS_CRYPTOCOMPARE_BASE_URL")
	setStr(&cfg.Providers.CryptoCompareAPIKey, "FILLSCOPE_PROVIDERS_CRYPTOCOMPARE_API_KEY")
	setStr(&cfg.Providers.EthplorerBaseURL, "FILLSCOPE_PROVIDERS_ETHPLORER_BASE_URL")
	setStr(&cfg.Providers.EthplorerAPIKey, "FILLSCOPE_PROVIDERS_ETHPLORER_API_KEY")
	setInt(&cfg.Providers.RateLimitPerMinute, "FILLSCOPE_PROVIDERS_RATE_LIMIT_PER_MINUTE")

	// ── Catalog ──
	setStringSlice(&cfg.Catalog.DefinitionPaths, "FILLSCOPE_CATALOG_DEFINITION_PATHS")
	setStr(&cfg.Catalog.OverridesPath, "FILLSCOPE_CATALOG_OVERRIDES_PATH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FILLSCOPE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FILLSCOPE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FILLSCOPE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FILLSCOPE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FILLSCOPE_MODE")
	setStr(&cfg.LogLevel, "FILLSCOPE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
