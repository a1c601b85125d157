package memory

import (
	"context"
	"testing"

	"ledger/internal/core"
)

func TestStore_ExportAndRemove(t *testing.T) {
	s := New()
	ctx := context.Background()
	l := core.Ledger{ID: "0d9f2c1e-aaaa", Name: "Goa Trip"}
	records := [][]string{{"Date & Time"}, {"2025-01-10 09:00"}}

	ref, err := s.ExportLedger(ctx, l, records)
	if err != nil {
		t.Fatalf("ExportLedger() error = %v", err)
	}
	if ref != "mem:Goa Trip [0d9f2c1e]!A1:G2" {
		t.Errorf("ref = %q", ref)
	}

	// The store must not alias the caller's records.
	records[1][0] = "changed"
	tab, ok := s.Tab(l.ID)
	if !ok || tab.Records[1][0] != "2025-01-10 09:00" || tab.Writes != 1 {
		t.Fatalf("Tab() = %+v, %v", tab, ok)
	}

	l.Name = "Renamed"
	if _, err := s.ExportLedger(ctx, l, records[:1]); err != nil {
		t.Fatalf("ExportLedger() error = %v", err)
	}
	tab, _ = s.Tab(l.ID)
	if tab.Title != "Renamed [0d9f2c1e]" || len(tab.Records) != 1 || tab.Writes != 2 {
		t.Errorf("re-export did not replace the tab: %+v", tab)
	}

	got, err := s.Exported(ctx)
	if err != nil || len(got) != 1 || got[0] != "0d9f2c1e" {
		t.Errorf("Exported() = %v, %v", got, err)
	}

	if err := s.RemoveLedger(ctx, l.ID); err != nil {
		t.Fatalf("RemoveLedger() error = %v", err)
	}
	if _, ok := s.Tab(l.ID); ok {
		t.Error("tab still present after RemoveLedger")
	}
	if err := s.RemoveLedger(ctx, l.ID); err != nil {
		t.Errorf("RemoveLedger() on missing tab error = %v", err)
	}
}

func TestStore_HonoursContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ExportLedger(ctx, core.Ledger{ID: "x"}, nil); err == nil {
		t.Error("ExportLedger() should fail on a cancelled context")
	}
}
