// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/MRamiBalles/uplink-sim/server/internal/platform/optimization"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort     int           `env:"METRICS_PORT" envDefault:"9090"`
	MetricsEndpoint string        `env:"METRICS_ENDPOINT" envDefault:"/metrics"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Storage
	DBPath string `env:"DB_PATH" envDefault:"data/uplink.db"`

	// Redis status cache. Empty address disables the cache.
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisMaxRetries uint64        `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisStatusTTL  time.Duration `env:"REDIS_STATUS_TTL" envDefault:"15m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// World
	WorldSeedPath    string `env:"WORLD_SEED_PATH"`
	NewsEveryTicks   int64  `env:"NEWS_EVERY_TICKS" envDefault:"1500"`
	StartingBalance  int64  `env:"STARTING_BALANCE" envDefault:"3000"`
	TuningProfile    string `env:"TUNING_PROFILE" envDefault:"default"`
	AllowedWSOrigins string `env:"ALLOWED_WS_ORIGINS"`

	Tuning *optimization.Config `env:"-"`
}

// Load reads a .env file when present, then parses the environment.
// The returned bool reports whether a .env file was loaded.
func Load() (*Config, bool, error) {
	loadedDotEnv := godotenv.Load() == nil

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, loadedDotEnv, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	tuning, err := optimization.ForProfile(cfg.TuningProfile)
	if err != nil {
		return nil, loadedDotEnv, err
	}
	cfg.Tuning = tuning

	return cfg, loadedDotEnv, nil
}

// Validate performs range checks the env tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d (must be 1-65535)", c.HTTPPort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid METRICS_PORT: %d (must be 1-65535)", c.MetricsPort)
	}
	if c.MetricsPort == c.HTTPPort {
		return fmt.Errorf("METRICS_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.NewsEveryTicks < 0 {
		return fmt.Errorf("invalid NEWS_EVERY_TICKS: %d (must be >= 0)", c.NewsEveryTicks)
	}
	if c.StartingBalance < 0 {
		return fmt.Errorf("invalid STARTING_BALANCE: %d (must be >= 0)", c.StartingBalance)
	}
	return nil
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}
