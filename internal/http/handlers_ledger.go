package http

import (
	"errors"
	"net/http"

	applog "ledger/internal/log"
	"ledger/internal/services"
)

// handleListLedgers lists ledgers in insertion order, filtered by ?q=.
func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers := s.store.Search(r.URL.Query().Get("q"))
	selected := s.store.SelectedID()

	out := ledgerList{Ledgers: make([]ledgerSummary, 0, len(ledgers))}
	for _, l := range ledgers {
		out.Ledgers = append(out.Ledgers, summarize(l, selected))
	}
	OK(out).Write(w)
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	name, resp := parseLedgerName(w, r)
	if resp != nil {
		resp.Write(w)
		return
	}

	l, err := s.store.AddLedger(r.Context(), name)
	if err != nil {
		s.storeFailure(w, r, applog.OpCreate, l.ID, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Ledger created",
		applog.FieldLedgerID, l.ID,
		applog.FieldRevision, s.store.Revision())
	Created(detail(l)).Header("Location", "/ledgers/"+l.ID).Write(w)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	l, ok := s.store.Ledger(r.PathValue("id"))
	if !ok {
		NotFoundError("ledger not found").Write(w)
		return
	}
	OK(detail(l)).Write(w)
}

// handleUpdateLedger renames a ledger. Unknown ids are accepted and ignored.
func (s *Server) handleUpdateLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name, resp := parseLedgerName(w, r)
	if resp != nil {
		resp.Write(w)
		return
	}
	if err := s.store.UpdateLedger(r.Context(), id, name); err != nil {
		s.storeFailure(w, r, applog.OpUpdate, id, err)
		return
	}
	s.dropExports(id)
	NoContent().Write(w)
}

// handleDeleteLedger deletes a ledger and its expenses. Unknown ids are
// accepted and ignored.
func (s *Server) handleDeleteLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteLedger(r.Context(), id); err != nil {
		s.storeFailure(w, r, applog.OpDelete, id, err)
		return
	}
	s.dropExports(id)
	NoContent().Write(w)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	var view selectionView
	if id := s.store.SelectedID(); id != "" {
		view.ID = &id
	}
	if l, ok := s.store.Selected(); ok {
		d := detail(l)
		view.Ledger = &d
	}
	OK(view).Write(w)
}

// handlePutSelection sets or clears the selection. The id is not checked,
// matching the store; GET reports a dangling selection as a null ledger.
func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		resp.Write(w)
		return
	}
	id := ""
	if req.ID != nil {
		id = sanitizeInput(*req.ID)
	}
	s.store.Select(id)
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Selection changed",
		applog.FieldOperation, applog.OpSelect,
		applog.FieldLedgerID, id)
	s.handleGetSelection(w, r)
}

// storeFailure answers a failed mutation. Persistence failures keep the
// change in memory, so the client is told it was applied but not saved.
func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, op, ledgerID string, err error) {
	fields := applog.NewFields()
	fields[applog.FieldLedgerID] = ledgerID
	s.events.LogError(r.Context(), "Ledger mutation failed", err, applog.ComponentLedger, op, fields)

	if errors.Is(err, services.ErrPersist) {
		InternalServerError("change applied but could not be saved").Write(w)
		return
	}
	InternalServerError("internal error").Write(w)
}

// dropExports forgets cached exports of a ledger. Keys carry the store
// revision, so this only frees memory early.
func (s *Server) dropExports(ledgerID string) {
	s.exportCache.DeletePrefix(ledgerID + "/")
}
