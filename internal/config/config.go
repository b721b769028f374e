// Package config loads controller settings from an optional YAML file,
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store and runtime backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	RuntimeDocker = "docker"
	RuntimeFake   = "fake"
)

// Config holds all configuration values for the controller.
type Config struct {
	// StoreDriver selects the desired-state backend.
	StoreDriver string `mapstructure:"store_driver"`

	// Database connection string for postgres, file path for sqlite.
	DatabaseURL string `mapstructure:"database_url"`

	// HTTP server port for the controller
	HTTPPort int `mapstructure:"port"`

	// APIToken guards mutating routes when set.
	APIToken string `mapstructure:"api_token"`

	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// Runtime selects the container runtime adapter.
	Runtime        string        `mapstructure:"runtime"`
	ContainerImage string        `mapstructure:"container_image"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`

	// Reconciliation engine
	EngineWorkers      int           `mapstructure:"engine_workers"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
	ResyncInterval     time.Duration `mapstructure:"resync_interval"`
	StatusRetention    time.Duration `mapstructure:"status_retention"`
	UnavailableRetries int           `mapstructure:"unavailable_retries"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	NameConflicts      int           `mapstructure:"name_conflict_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`

	// OTELEndpoint is the OTLP gRPC collector. Empty disables tracing export.
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	LogLevel string `mapstructure:"log_level"`
}

// envBindings maps config keys onto their environment variables.
var envBindings = map[string]string{
	"store_driver":          "STORE_DRIVER",
	"database_url":          "DATABASE_URL",
	"port":                  "PORT",
	"api_token":             "API_TOKEN",
	"rate_limit":            "RATE_LIMIT",
	"rate_limit_burst":      "RATE_LIMIT_BURST",
	"runtime":               "RUNTIME",
	"container_image":       "CONTAINER_IMAGE",
	"stop_timeout":          "STOP_TIMEOUT",
	"engine_workers":        "ENGINE_WORKERS",
	"job_timeout":           "JOB_TIMEOUT",
	"resync_interval":       "RESYNC_INTERVAL",
	"status_retention":      "STATUS_RETENTION",
	"unavailable_retries":   "UNAVAILABLE_RETRIES",
	"max_attempts":          "MAX_ATTEMPTS",
	"name_conflict_retries": "NAME_CONFLICT_RETRIES",
	"initial_backoff":       "INITIAL_BACKOFF",
	"max_backoff":           "MAX_BACKOFF",
	"otel_endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log_level":             "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_driver", StorePostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("port", 6161)
	v.SetDefault("api_token", "")
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("runtime", RuntimeDocker)
	v.SetDefault("container_image", "mongo")
	v.SetDefault("stop_timeout", 10*time.Second)
	v.SetDefault("engine_workers", 4)
	v.SetDefault("job_timeout", 2*time.Minute)
	v.SetDefault("resync_interval", 5*time.Minute)
	v.SetDefault("status_retention", time.Hour)
	v.SetDefault("unavailable_retries", 5)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("name_conflict_retries", 5)
	v.SetDefault("initial_backoff", 200*time.Millisecond)
	v.SetDefault("max_backoff", 10*time.Second)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("log_level", "info")
}

// Load reads configuration. path may be empty; environment variables
// override file values, which override defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.Runtime = strings.ToLower(strings.TrimSpace(cfg.Runtime))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres, StoreSQLite:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required (env: DATABASE_URL)")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}

	switch c.Runtime {
	case RuntimeDocker, RuntimeFake:
	default:
		return fmt.Errorf("unknown runtime %q", c.Runtime)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid port %d", c.HTTPPort)
	}
	if c.EngineWorkers < 1 {
		return fmt.Errorf("engine_workers must be at least 1, got %d", c.EngineWorkers)
	}
	if c.ContainerImage == "" {
		return errors.New("container_image is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
