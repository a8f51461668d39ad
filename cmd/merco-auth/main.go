// Command merco-auth serves the merco HTTP API.
//
// Usage:
//
//	merco-auth                                     serve on MERCO_HTTP_ADDR
//	merco-auth apikey -tenant acme -name backend   mint a tenant API key
//
// Configuration is read from MERCO_* environment variables; see
// internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SametHaymana/merco-api/internal/bootstrap"
	"github.com/SametHaymana/merco-api/internal/config"
	"github.com/SametHaymana/merco-api/internal/httpapi"
	promexport "github.com/SametHaymana/merco-api/metrics/export/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "apikey" {
		if err := createAPIKey(cfg, logger, os.Args[2:]); err != nil {
			logger.Error("create api key failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func serve(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{Queue: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	handler := httpapi.NewRouter(rt.Engine, httpapi.Options{
		Logger:     logger,
		Metrics:    promexport.NewPrometheusExporter(rt.Engine).Handler(),
		Checks:     rt.Ready(),
		TrustProxy: cfg.HTTP.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTP.Addr, "storage", cfg.Storage, "redis", cfg.Redis.Addr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// createAPIKey mints the first key of a tenant, which every /v1 route needs.
func createAPIKey(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("apikey", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id")
	name := fs.String("name", "default", "key name")
	ttl := fs.Duration("ttl", 0, "key lifetime; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer rt.Close()

	key, err := rt.Engine.CreateAPIKey(ctx, *tenant, *name, *ttl)
	if err != nil {
		return err
	}
	fmt.Printf("id:     %s\ntenant: %s\nkey:    %s\n", key.ID, key.TenantID, key.Key)
	return nil
}
