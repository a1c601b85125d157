package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/services"
	"ledger/internal/sheets"
	"ledger/internal/storage"
)

// ExportWorker mirrors the stored ledgers into a spreadsheet. It reads the
// slot the API writes to and never writes to it.
type ExportWorker struct {
	slot     storage.Slot
	key      string
	exporter sheets.LedgerExporter
	location *time.Location
	logger   *slog.Logger
}

// Options tune an ExportWorker. Zero values pick the defaults.
type Options struct {
	Key      string
	Location *time.Location
	Logger   *slog.Logger
}

func NewExportWorker(slot storage.Slot, exporter sheets.LedgerExporter, opts Options) *ExportWorker {
	w := &ExportWorker{
		slot:     slot,
		key:      opts.Key,
		exporter: exporter,
		location: opts.Location,
		logger:   opts.Logger,
	}
	if w.key == "" {
		w.key = services.StorageKey
	}
	if w.location == nil {
		w.location = time.UTC
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// HandleChange processes a single change message from AMQP. The ledger is
// re-read from the slot, so late or duplicated messages export the current
// state rather than the one they describe.
func (w *ExportWorker) HandleChange(ctx context.Context, msg *amqp.LedgerChangeMessage) error {
	ev := msg.Event()
	w.logger.InfoContext(ctx, "Processing change message",
		"op", ev.Op,
		"ledger_id", ev.LedgerID,
		"revision", ev.Revision)

	if ev.RemovesLedger() {
		return w.remove(ctx, ev.LedgerID)
	}

	ledgers, err := w.load(ctx)
	if err != nil {
		return err
	}
	for _, l := range ledgers {
		if l.ID == ev.LedgerID {
			return w.exportLedger(ctx, l)
		}
	}

	// Deleted after the message was sent; its own delete message may
	// already have been handled, so removing again is harmless.
	w.logger.InfoContext(ctx, "Ledger no longer stored, removing its tab", "ledger_id", ev.LedgerID)
	return w.remove(ctx, ev.LedgerID)
}

// Resync exports every stored ledger and removes tabs whose ledger is gone.
// It is the backup for lost messages and runs at startup and on a timer.
func (w *ExportWorker) Resync(ctx context.Context) error {
	ledgers, err := w.load(ctx)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(ledgers))
	var errs []error
	for _, l := range ledgers {
		keep[sheets.ShortID(l.ID)] = true
		if err := w.exportLedger(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}

	exported, err := w.exporter.Exported(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list exported ledgers: %w", err))
		return errors.Join(errs...)
	}
	removed := 0
	for _, short := range exported {
		if keep[short] {
			continue
		}
		if err := w.exporter.RemoveLedger(ctx, short); err != nil {
			errs = append(errs, fmt.Errorf("remove orphan tab %s: %w", short, err))
			continue
		}
		removed++
	}

	w.logger.InfoContext(ctx, "Resync completed",
		"ledgers", len(ledgers),
		"orphans_removed", removed,
		"errors", len(errs))
	return errors.Join(errs...)
}

// RunPeriodic calls Resync every interval until ctx is done. Failures are
// logged and the loop keeps going.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid resync interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Resync(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic resync failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) load(ctx context.Context) ([]core.Ledger, error) {
	ledgers, err := services.LoadSnapshot(ctx, w.slot, w.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledgers: %w", err)
	}
	return ledgers, nil
}

func (w *ExportWorker) exportLedger(ctx context.Context, l core.Ledger) error {
	records := export.NewTable(l, w.location).Records()
	ref, err := w.exporter.ExportLedger(ctx, l, records)
	if err != nil {
		return fmt.Errorf("export ledger %s: %w", l.ID, err)
	}
	w.logger.InfoContext(ctx, "Exported ledger",
		"ledger_id", l.ID,
		"expenses", len(l.Expenses),
		"sheets_ref", ref)
	return nil
}

func (w *ExportWorker) remove(ctx context.Context, ledgerID string) error {
	if err := w.exporter.RemoveLedger(ctx, ledgerID); err != nil {
		return fmt.Errorf("remove ledger %s: %w", ledgerID, err)
	}
	w.logger.InfoContext(ctx, "Removed ledger tab", "ledger_id", ledgerID)
	return nil
}
