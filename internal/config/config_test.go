package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate(): %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"empty postgres host", func(c *Config) { c.Postgres.Host = "" }},
		{"min conns above max", func(c *Config) { c.Postgres.PoolMinConns = 20 }},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"zero batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"zero measure interval", func(c *Config) { c.Pipeline.MeasureInterval = duration{} }},
		{"no catalog paths", func(c *Config) { c.Catalog.DefinitionPaths = nil }},
		{"zero rate limit", func(c *Config) { c.Providers.RateLimitPerMinute = 0 }},
		{"negative retry delay", func(c *Config) { c.Pipeline.RetryDelay = duration{-time.Second} }},
		{"negative per-job retries", func(c *Config) { c.Pipeline.DeriveMaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestJobMaxRetries(t *testing.T) {
	pc := PipelineConfig{MaxRetries: 10, MeasureMaxRetries: 3}
	if got := pc.JobMaxRetries(pc.MeasureMaxRetries); got != 3 {
		t.Errorf("override budget = %d, want 3", got)
	}
	if got := pc.JobMaxRetries(pc.DeriveMaxRetries); got != 10 {
		t.Errorf("default budget = %d, want 10", got)
	}
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:p@db.internal:5432/fillscope"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "jobs"
log_level = "debug"

[pipeline]
measure_interval = "15s"
batch_size = 50

[catalog]
definition_paths = ["data/entities.json"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "jobs" || cfg.LogLevel != "debug" {
		t.Errorf("top level = (%q, %q)", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Pipeline.MeasureInterval.Duration != 15*time.Second {
		t.Errorf("measure_interval = %s, want 15s", cfg.Pipeline.MeasureInterval.Duration)
	}
	if cfg.Pipeline.BatchSize != 50 {
		t.Errorf("batch_size = %d, want 50", cfg.Pipeline.BatchSize)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
	if cfg.Catalog.DefinitionPaths[0] != "data/entities.json" {
		t.Errorf("definition_paths = %v", cfg.Catalog.DefinitionPaths)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FILLSCOPE_MODE", "consumers")
	t.Setenv("FILLSCOPE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("FILLSCOPE_PIPELINE_MEASURE_INTERVAL", "45s")
	t.Setenv("FILLSCOPE_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("FILLSCOPE_CATALOG_DEFINITION_PATHS", "a.json, b.json")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "consumers" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Pipeline.MeasureInterval.Duration != 45*time.Second {
		t.Errorf("measure_interval = %s", cfg.Pipeline.MeasureInterval.Duration)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("run_migrations not overridden")
	}
	want := []string{"a.json", "b.json"}
	if len(cfg.Catalog.DefinitionPaths) != 2 || cfg.Catalog.DefinitionPaths[0] != want[0] || cfg.Catalog.DefinitionPaths[1] != want[1] {
		t.Errorf("definition_paths = %v, want %v", cfg.Catalog.DefinitionPaths, want)
	}
}
