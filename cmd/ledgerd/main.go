package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/backend"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).CreateBackend(startCtx, backendCfg)
	if err != nil {
		cancelStart()
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	store := services.NewLedgerStore(startCtx, result.Slot, services.LedgerStoreOptions{
		Key:       cfg.StorageKey,
		Publisher: result.Publisher,
		Logger:    logger.WithComponent(applog.ComponentLedger).Slog(),
	})
	cancelStart()

	checks := map[string]apphttp.ReadinessCheck{}
	if result.AMQP != nil {
		checks["amqp"] = result.AMQP.Ready
	}

	srv := apphttp.NewServer(store, apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ExportCacheSize:    cfg.ExportCacheSize,
		ExportCacheTTL:     cfg.ExportCacheTTL,
		Location:           time.Local,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		Checks:             checks,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting ledgerd",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", result.AMQP != nil,
		"ledgers", len(store.Ledgers()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
