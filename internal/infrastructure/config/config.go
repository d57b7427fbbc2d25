package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Billing  BillingConfig  `koanf:"billing"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type BillingConfig struct {
	// Currency is the engine-wide ISO 4217 currency for all invoices.
	Currency string `koanf:"currency"`

	// DefaultDueDays is the global days-until-due applied when a contract
	// carries no override.
	DefaultDueDays int `koanf:"default_due_days"`

	Scheduler SchedulerConfig `koanf:"scheduler"`
}

type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// RunHour is the UTC hour of day at which the daily batch fires.
	RunHour int `koanf:"run_hour"`

	// Concurrency bounds the worker pool fanning contracts out during a run.
	Concurrency int `koanf:"concurrency"`
}

// Load builds the configuration from defaults, an optional YAML file, and
// RENT_-prefixed environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Billing: BillingConfig{
			Currency:       "IDR",
			DefaultDueDays: 7,
			Scheduler: SchedulerConfig{
				Enabled:     true,
				RunHour:     1,
				Concurrency: 4,
			},
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = "configs/config.yaml"
	}
	// Config file is optional.
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("RENT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RENT_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Billing.DefaultDueDays < 0 {
		return fmt.Errorf("billing.default_due_days cannot be negative")
	}
	if c.Billing.Scheduler.RunHour < 0 || c.Billing.Scheduler.RunHour > 23 {
		return fmt.Errorf("billing.scheduler.run_hour must be between 0 and 23")
	}
	if c.Billing.Scheduler.Concurrency < 1 {
		return fmt.Errorf("billing.scheduler.concurrency must be at least 1")
	}
	return nil
}
