package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/config"
	applog "ledger/internal/log"
	ports "ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	mem "ledger/internal/sheets/memory"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	backendCfg.RequireAMQP = true
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend is private to each process, the worker will only see an empty collection")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		_ = result.Cleanup()
		os.Exit(1)
	}

	w := worker.NewExportWorker(result.Slot, exporter, worker.Options{
		Key:      cfg.StorageKey,
		Location: time.Local,
		Logger:   logger.WithComponent(applog.ComponentWorker).Slog(),
	})

	// Catch up on anything missed while the worker was down.
	logger.Info("Performing startup resync...")
	if err := w.Resync(ctx); err != nil {
		logger.Error("Startup resync failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return result.AMQP.ConsumeLedgerChanges(gctx, w.HandleChange)
	})
	g.Go(func() error {
		return w.RunPeriodic(gctx, cfg.SyncInterval)
	})

	logger.Info("Worker started",
		"backend", cfg.DataBackend,
		"sheets", cfg.GoogleSpreadsheetID != "",
		"sync_interval", cfg.SyncInterval)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		_ = result.Cleanup()
		os.Exit(1)
	}
	if ctx.Err() != nil {
		<-done
	}
	logger.Info("Worker stopped gracefully")
}

// newExporter picks Google Sheets when a spreadsheet is configured and an
// in-memory exporter otherwise.
func newExporter(ctx context.Context, cfg *config.Config, logger *applog.Logger) (ports.LedgerExporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
		return mem.New(), nil
	}
	client, err := gsheet.NewWithCredentials(ctx, cfg.GoogleSpreadsheetID, gsheet.Credentials{
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
