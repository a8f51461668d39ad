// Command merco-worker drains the notification queue and runs the periodic
// session and token sweeps.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/SametHaymana/merco-api/internal/bootstrap"
	"github.com/SametHaymana/merco-api/internal/config"
	"github.com/SametHaymana/merco-api/internal/jobs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(cfg)

	if cfg.Redis.Addr == "" {
		logger.Error("MERCO_REDIS_ADDR is required by the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	redisOpt := bootstrap.RedisConnOpt(cfg)

	scheduler, err := jobs.NewScheduler(redisOpt, cfg.Worker.SweepInterval)
	if err != nil {
		logger.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      jobs.Queues,
	})
	mux := jobs.NewServeMux(rt.Transport, rt.Engine, logger)

	logger.Info("starting worker", "concurrency", cfg.Worker.Concurrency, "sweep_interval", cfg.Worker.SweepInterval.String())
	if err := srv.Start(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	srv.Shutdown()
}
