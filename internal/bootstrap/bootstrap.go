// Package bootstrap turns a loaded config.Config into a running engine and
// the infrastructure behind it. Both binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/internal/config"
	"github.com/SametHaymana/merco-api/internal/jobs"
	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/storage"
	"github.com/SametHaymana/merco-api/storage/memory"
	"github.com/SametHaymana/merco-api/storage/postgres"
)

// Runtime owns the engine and every connection opened for it.
type Runtime struct {
	Engine *merco.Engine
	// Transport delivers messages synchronously (SMTP or log).
	Transport notify.Sender
	Redis     redis.UniversalClient
	Postgres  *postgres.Store

	closers []func() error
	logger  *slog.Logger
}

// Options tweak what Build wires.
type Options struct {
	// Queue sends notifications through the asynq queue instead of the
	// transport. Only the API process sets it; the worker drains the queue.
	Queue bool
}

// NewLogger builds the JSON process logger at cfg.LogLevel and installs it
// as the slog default.
func NewLogger(cfg config.Config) *slog.Logger {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Build opens storage and Redis as configured and builds the engine.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	var store storage.Storage
	switch cfg.Storage {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.Pool())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		rt.Postgres = pg
		rt.closers = append(rt.closers, pg.Close)
		if cfg.Postgres.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				rt.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		store = pg
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		store = memory.New()
	}

	builder := merco.New().
		WithConfig(cfg.Engine).
		WithStorage(store).
		WithLogger(logger).
		WithAuditSink(merco.NewSlogAuditSink(logger))

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			rt.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		rt.Redis = rdb
		rt.closers = append(rt.closers, rdb.Close)
		builder = builder.WithRedis(rdb)
	}

	rt.Transport = transport(cfg, logger)
	sender := rt.Transport
	if opts.Queue && cfg.Worker.AsyncDelivery {
		if rt.Redis == nil {
			rt.Close()
			return nil, errors.New("async delivery requires redis")
		}
		q := jobs.NewClientFromRedis(rt.Redis, logger)
		rt.closers = append(rt.closers, q.Close)
		sender = q
	}
	builder = builder.WithSender(sender)

	engine, err := builder.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.Engine = engine
	return rt, nil
}

// transport is SMTP for email when a host is configured and the log sender
// otherwise. SMS always goes to the log; no SMS gateway is wired.
func transport(cfg config.Config, logger *slog.Logger) notify.Sender {
	logSender := notify.LogSender{Logger: logger}
	var email notify.Sender = logSender
	if cfg.SMTP.Host != "" {
		email = notify.NewSMTPSender(cfg.SMTP)
	}
	return notify.Router{Email: email, SMS: logSender}
}

// RedisConnOpt describes the configured Redis for asynq servers and schedulers.
func RedisConnOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// Ready reports each opened dependency by name.
func (rt *Runtime) Ready() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if rt.Postgres != nil {
		checks["postgres"] = rt.Postgres.Ping
	}
	if rt.Redis != nil {
		rdb := rt.Redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// Close stops the engine and closes connections in reverse order of opening.
func (rt *Runtime) Close() {
	if rt.Engine != nil {
		rt.Engine.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}
