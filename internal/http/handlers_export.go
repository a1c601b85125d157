package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"ledger/internal/export"
	applog "ledger/internal/log"
)

const exportTimeout = time.Minute

// handleExport serves a ledger as CSV, XLSX or PDF.
//
// Rendered files are cached under ledger id, store revision and format.
// The revision is read before the ledger, so an entry never holds data
// older than its key. Concurrent requests for the same key render once.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ledgerID := r.PathValue("id")
	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}

	rev := s.store.Revision()
	l, ok := s.store.Ledger(ledgerID)
	if !ok {
		NotFoundError("ledger not found").Write(w)
		return
	}
	key := fmt.Sprintf("%s/%d/%s", ledgerID, rev, format)

	data, hit := s.exportCache.Get(key)
	if !hit {
		v, err, _ := s.exportFlight.Do(key, func() (any, error) {
			if data, ok := s.exportCache.Get(key); ok {
				return data, nil
			}
			// Waiters share this render, so it must not end with the
			// first caller's request.
			renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
			defer cancel()
			data, err := s.renderer.Render(renderCtx, format, l)
			if err != nil {
				return nil, err
			}
			s.exportCache.Set(key, data)
			return data, nil
		})
		if err != nil {
			fields := applog.NewFields()
			fields[applog.FieldLedgerID] = ledgerID
			fields[applog.FieldFormat] = string(format)
			s.events.LogError(ctx, "Export failed", err, applog.ComponentExport, applog.OpExport, fields)
			if ctx.Err() != nil {
				return
			}
			InternalServerError("export failed").Write(w)
			return
		}
		data = v.([]byte)
	}
	s.recordCache(hit)
	atomic.AddInt64(&s.appMetrics.exports, 1)
	s.events.LogExport(ctx, ledgerID, string(format), len(data), hit)

	h := w.Header()
	h.Set("Content-Type", format.ContentType())
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(l.Name, format)))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "private, no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
