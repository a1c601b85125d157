package http

import (
	"net/http"
	"sync/atomic"

	applog "ledger/internal/log"
)

// handleCreateExpense records an expense at the top of the ledger.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ledgerID := r.PathValue("id")
	data, resp := parseExpense(w, r)
	if resp != nil {
		resp.Write(w)
		return
	}

	e, err := s.store.AddExpense(r.Context(), ledgerID, data)
	if err != nil {
		s.storeFailure(w, r, applog.OpCreate, ledgerID, err)
		return
	}
	// The store ignores inserts into unknown ledgers and returns no id.
	if e.ID == "" {
		NotFoundError("ledger not found").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesAdded, 1)
	s.events.LogExpenseRecorded(r.Context(), ledgerID, e)
	s.dropExports(ledgerID)

	l, _ := s.store.Ledger(ledgerID)
	for _, b := range detail(l).Expenses {
		if b.ID == e.ID {
			Created(b).Header("Location", "/ledgers/"+ledgerID+"/expenses/"+e.ID).Write(w)
			return
		}
	}
	// Deleted by a concurrent request in the meantime.
	Created(e).Write(w)
}

// handleUpdateExpense replaces an expense, keeping its id and position.
// Unknown ledger or expense ids are accepted and ignored.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	ledgerID, expenseID := r.PathValue("id"), r.PathValue("eid")
	data, resp := parseExpense(w, r)
	if resp != nil {
		resp.Write(w)
		return
	}
	if err := s.store.UpdateExpense(r.Context(), ledgerID, expenseID, data); err != nil {
		s.storeFailure(w, r, applog.OpUpdate, ledgerID, err)
		return
	}
	s.dropExports(ledgerID)
	NoContent().Write(w)
}

// handleDeleteExpense removes an expense. Unknown ids are accepted and ignored.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ledgerID, expenseID := r.PathValue("id"), r.PathValue("eid")
	if err := s.store.DeleteExpense(r.Context(), ledgerID, expenseID); err != nil {
		s.storeFailure(w, r, applog.OpDelete, ledgerID, err)
		return
	}
	s.dropExports(ledgerID)
	NoContent().Write(w)
}
