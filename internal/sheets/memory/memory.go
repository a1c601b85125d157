package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// Tab is an exported ledger as the store holds it.
type Tab struct {
	Title   string
	Records [][]string
	Writes  int
}

// Store keeps exported ledgers in memory. Used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu   sync.Mutex
	tabs map[string]*Tab
}

var _ ports.LedgerExporter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string]*Tab)}
}

// ExportLedger replaces the ledger's tab and returns a synthetic reference.
func (s *Store) ExportLedger(ctx context.Context, l core.Ledger, records [][]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	short := ports.ShortID(l.ID)
	tab, ok := s.tabs[short]
	if !ok {
		tab = &Tab{}
		s.tabs[short] = tab
	}
	tab.Title = ports.TabTitle(l)
	tab.Records = cloneRecords(records)
	tab.Writes++
	return fmt.Sprintf("mem:%s!A1:G%d", tab.Title, len(records)), nil
}

func (s *Store) RemoveLedger(ctx context.Context, ledgerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tabs, ports.ShortID(ledgerID))
	return nil
}

func (s *Store) Exported(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tabs))
	for short := range s.tabs {
		out = append(out, short)
	}
	slices.Sort(out)
	return out, nil
}

// Tab returns a copy of the ledger's tab.
func (s *Store) Tab(ledgerID string) (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.tabs[ports.ShortID(ledgerID)]
	if !ok {
		return Tab{}, false
	}
	return Tab{Title: tab.Title, Records: cloneRecords(tab.Records), Writes: tab.Writes}, true
}

func cloneRecords(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, r := range in {
		out[i] = slices.Clone(r)
	}
	return out
}
