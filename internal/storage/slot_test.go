package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func exerciseSlot(t *testing.T, s Slot) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "trip-tracker-ledgers"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty slot: expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, "trip-tracker-ledgers", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "trip-tracker-ledgers", []byte(`[]`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, "trip-tracker-ledgers")
	if err != nil || string(got) != `[]` {
		t.Fatalf("Get after overwrite = %q, %v", got, err)
	}

	if err := s.Put(ctx, "other", []byte(`x`)); err != nil {
		t.Fatalf("Put other key: %v", err)
	}
	got, _ = s.Get(ctx, "trip-tracker-ledgers")
	if string(got) != `[]` {
		t.Fatalf("keys are not independent: %q", got)
	}
}

func TestMemorySlot(t *testing.T) {
	s := NewMemorySlot()
	exerciseSlot(t, s)

	// Returned values must not alias stored ones.
	_ = s.Put(context.Background(), "k", []byte("abc"))
	v, _ := s.Get(context.Background(), "k")
	v[0] = 'z'
	again, _ := s.Get(context.Background(), "k")
	if string(again) != "abc" {
		t.Fatalf("MemorySlot leaks its buffer: %q", again)
	}
}

func TestFileSlot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSlot(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("NewFileSlot: %v", err)
	}
	exerciseSlot(t, s)

	entries, err := os.ReadDir(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}

	// A fresh slot on the same directory sees the data.
	reopened, _ := NewFileSlot(filepath.Join(dir, "data"))
	got, err := reopened.Get(context.Background(), "trip-tracker-ledgers")
	if err != nil || string(got) != `[]` {
		t.Fatalf("reopened Get = %q, %v", got, err)
	}
}

func TestFileSlotSanitizesKeys(t *testing.T) {
	s, _ := NewFileSlot(t.TempDir())
	if p := s.path("../../etc/passwd"); filepath.Dir(p) != s.dir {
		t.Fatalf("key escaped the data directory: %s", p)
	}
}

func TestFileSlotHonoursContext(t *testing.T) {
	s, _ := NewFileSlot(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSQLiteSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "ledger.db")
	s, err := NewSQLiteSlot(path)
	if err != nil {
		t.Fatalf("NewSQLiteSlot: %v", err)
	}
	exerciseSlot(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Migrations are idempotent and data survives a reopen.
	s, err = NewSQLiteSlot(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), "trip-tracker-ledgers")
	if err != nil || string(got) != `[]` {
		t.Fatalf("reopened Get = %q, %v", got, err)
	}
}
