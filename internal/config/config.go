// Package config defines service configuration and its loading from defaults,
// an optional YAML file and SCOREBOARD_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Store drivers accepted in store_driver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects "json" or "text" output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// StoreDriver selects the score store: memory, sqlite or redis.
	StoreDriver string `koanf:"store_driver"`

	SQLitePath string `koanf:"sqlite_path"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	// JWTSecret is the HS256 secret shared with the token issuer.
	JWTSecret string `koanf:"jwt_secret"`

	DefaultLeaderboardLimit int `koanf:"default_leaderboard_limit"`
	MaxLeaderboardLimit     int `koanf:"max_leaderboard_limit"`
	DefaultPageSize         int `koanf:"default_page_size"`
	MaxPageSize             int `koanf:"max_page_size"`

	// MutationRPS and MutationBurst limit mutations per caller. A
	// non-positive rate disables limiting.
	MutationRPS   float64 `koanf:"mutation_rps"`
	MutationBurst int     `koanf:"mutation_burst"`

	// IdempotencySize bounds the idempotency key cache; IdempotencyTTL
	// expires keys, zero keeps them until evicted.
	IdempotencySize int           `koanf:"idempotency_size"`
	IdempotencyTTL  time.Duration `koanf:"idempotency_ttl"`

	// QueueSize bounds the points award queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of award workers.
	WorkerCount int `koanf:"worker_count"`

	// MetricsInterval sets how often gauges are refreshed.
	MetricsInterval time.Duration `koanf:"metrics_interval"`

	// SeedUsers provisions this many random users when serving starts.
	SeedUsers int `koanf:"seed_users"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "json",
		Addr:                    ":9080",
		ShutdownTimeout:         15 * time.Second,
		StoreDriver:             DriverMemory,
		SQLitePath:              "scoreboard.db",
		RedisAddr:               "localhost:6379",
		RedisPrefix:             "scoreboard",
		DefaultLeaderboardLimit: 10,
		MaxLeaderboardLimit:     100,
		DefaultPageSize:         20,
		MaxPageSize:             100,
		MutationRPS:             20,
		MutationBurst:           40,
		IdempotencySize:         100_000,
		IdempotencyTTL:          24 * time.Hour,
		QueueSize:               10_000,
		WorkerCount:             runtime.NumCPU() * 2,
		MetricsInterval:         5 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains([]string{DriverMemory, DriverSQLite, DriverRedis}, c.StoreDriver):
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == DriverSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.StoreDriver == DriverRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
	case c.JWTSecret == "":
		return fmt.Errorf("%w: jwt_secret must be set", ErrInvalidConfig)
	case c.DefaultLeaderboardLimit < 1 || c.MaxLeaderboardLimit < c.DefaultLeaderboardLimit:
		return fmt.Errorf("%w: leaderboard limits must satisfy 1 <= default <= max", ErrInvalidConfig)
	case c.DefaultPageSize < 1 || c.MaxPageSize < c.DefaultPageSize:
		return fmt.Errorf("%w: page sizes must satisfy 1 <= default <= max", ErrInvalidConfig)
	case c.QueueSize < 1 || c.WorkerCount < 1 || c.IdempotencySize < 1:
		return fmt.Errorf("%w: queue_size, worker_count and idempotency_size must be positive", ErrInvalidConfig)
	case c.MetricsInterval <= 0:
		return fmt.Errorf("%w: metrics_interval must be positive", ErrInvalidConfig)
	case c.SeedUsers < 0:
		return fmt.Errorf("%w: seed_users must not be negative", ErrInvalidConfig)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("%w: log_format must be json or text", ErrInvalidConfig)
	}
	return nil
}
