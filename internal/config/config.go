// Package config loads process configuration for the merco binaries from
// MERCO_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/storage/postgres"
)

// Prefix is prepended to every variable name.
const Prefix = "MERCO_"

// Config is everything a merco process reads at startup. Engine carries the
// library configuration; the remaining sections wire infrastructure.
type Config struct {
	Engine merco.Config

	// Storage selects the entity store: "memory" or "postgres".
	Storage  string `env:"STORAGE" envDefault:"memory"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTP     HTTPConfig        `envPrefix:"HTTP_"`
	Postgres PostgresConfig    `envPrefix:"POSTGRES_"`
	Redis    RedisConfig       `envPrefix:"REDIS_"`
	SMTP     notify.SMTPConfig `envPrefix:"SMTP_"`
	Worker   WorkerConfig      `envPrefix:"WORKER_"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	TrustProxy      bool          `env:"TRUST_PROXY"`
}

type PostgresConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"15m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	// Migrate applies embedded migrations on startup.
	Migrate bool `env:"MIGRATE" envDefault:"true"`
}

// Pool converts the pool settings for postgres.Open.
func (c PostgresConfig) Pool() postgres.PoolConfig {
	return postgres.PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// RedisConfig enables Redis-backed sessions, tokens and the job queue when
// Addr is set.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type WorkerConfig struct {
	Concurrency   int           `env:"CONCURRENCY" envDefault:"10"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	// AsyncDelivery routes notifications through the job queue instead of
	// sending inline. Requires Redis.
	AsyncDelivery bool `env:"ASYNC_DELIVERY" envDefault:"false"`
}

// Load reads the process environment over the defaults.
func Load() (Config, error) {
	return load(env.Options{Prefix: Prefix})
}

// LoadFrom reads vars instead of the process environment. Keys include the
// MERCO_ prefix.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Prefix: Prefix, Environment: vars})
}

func load(opts env.Options) (Config, error) {
	cfg := Config{Engine: merco.DefaultConfig()}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the infrastructure sections. Engine is validated by
// merco.Builder.Build.
func (c *Config) Validate() error {
	switch c.Storage {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("MERCO_POSTGRES_DSN is required with postgres storage")
		}
	default:
		return fmt.Errorf("MERCO_STORAGE must be memory or postgres, got %q", c.Storage)
	}
	if c.Engine.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("MERCO_REDIS_ADDR is required with the redis rate limit backend")
	}
	if c.Worker.AsyncDelivery && c.Redis.Addr == "" {
		return errors.New("MERCO_REDIS_ADDR is required for async delivery")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("MERCO_WORKER_CONCURRENCY must be > 0")
	}
	if c.Worker.SweepInterval < time.Minute {
		return errors.New("MERCO_WORKER_SWEEP_INTERVAL must be at least 1m")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("MERCO_LOG_LEVEL: %w", err)
	}
	return l, nil
}
