package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/export"
	applog "ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// flakySlot fails every Put while fail is set.
type flakySlot struct {
	storage.Slot
	fail atomic.Bool
}

func (s *flakySlot) Put(ctx context.Context, key string, value []byte) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.Slot.Put(ctx, key, value)
}

type testServer struct {
	*Server
	slot *flakySlot
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	slot := &flakySlot{Slot: storage.NewMemorySlot()}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := 0
	store := services.NewLedgerStore(context.Background(), slot, services.LedgerStoreOptions{
		Logger: quiet,
		Now:    func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	opts.Logger = applog.New(applog.Config{Level: slog.LevelError, Component: applog.ComponentHTTP, Output: io.Discard})
	srv := NewServer(store, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, slot: slot}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) createLedger(t *testing.T, name string) ledgerDetail {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/ledgers", fmt.Sprintf(`{"name":%q}`, name))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ledger status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[ledgerDetail](t, rec)
}

func (ts *testServer) createExpense(t *testing.T, ledgerID, kind, amount string) core.BalancedExpense {
	t.Helper()
	body := validExpenseJSON(map[string]any{"type": kind, "amount": amount})
	rec := ts.do(t, http.MethodPost, "/ledgers/"+ledgerID+"/expenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[core.BalancedExpense](t, rec)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, Options{Checks: map[string]ReadinessCheck{
		"queue": func(context.Context) error { return nil },
	}})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := ts.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	failing := newTestServer(t, Options{Checks: map[string]ReadinessCheck{
		"queue": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := failing.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("readyz body = %s", rec.Body.String())
	}
}

func TestLedgerBalancesScenario(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Goa Trip")
	ts.createExpense(t, l.ID, "cash-in", "5000")
	added := ts.createExpense(t, l.ID, "cash-out", "1200")
	if added.Balance.Fixed() != "3800.00" {
		t.Errorf("new expense balance = %s, want 3800.00", added.Balance.Fixed())
	}

	rec := ts.do(t, http.MethodGet, "/ledgers/"+l.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get ledger status = %d", rec.Code)
	}
	got := decode[ledgerDetail](t, rec)
	if len(got.Expenses) != 2 {
		t.Fatalf("expenses = %d, want 2", len(got.Expenses))
	}
	wantBalances := []string{"3800.00", "5000.00"}
	for i, e := range got.Expenses {
		if e.Balance.Fixed() != wantBalances[i] {
			t.Errorf("expense %d balance = %s, want %s", i, e.Balance.Fixed(), wantBalances[i])
		}
	}
	if got.Totals.CashIn.Fixed() != "5000.00" || got.Totals.CashOut.Fixed() != "1200.00" || got.Totals.Net.Fixed() != "3800.00" {
		t.Errorf("totals = %+v", got.Totals)
	}
	if len(got.ByCategory) != 1 || got.ByCategory[0].Name != "Food" {
		t.Errorf("by category = %+v", got.ByCategory)
	}
}

func TestListLedgers(t *testing.T) {
	ts := newTestServer(t, Options{})
	goa := ts.createLedger(t, "Goa Trip")
	ts.createLedger(t, "Groceries")
	ts.createExpense(t, goa.ID, "cash-in", "100")
	ts.do(t, http.MethodPut, "/selection", fmt.Sprintf(`{"id":%q}`, goa.ID))

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Goa Trip", "Groceries"}},
		{"?q=GOA", []string{"Goa Trip"}},
		{"?q=gro", []string{"Groceries"}},
		{"?q=nothing", []string{}},
	}
	for _, tt := range tests {
		rec := ts.do(t, http.MethodGet, "/ledgers"+tt.query, "")
		got := decode[ledgerList](t, rec)
		names := []string{}
		for _, l := range got.Ledgers {
			names = append(names, l.Name)
		}
		if strings.Join(names, ",") != strings.Join(tt.want, ",") {
			t.Errorf("GET /ledgers%s = %v, want %v", tt.query, names, tt.want)
		}
	}

	all := decode[ledgerList](t, ts.do(t, http.MethodGet, "/ledgers", ""))
	if !all.Ledgers[0].Selected || all.Ledgers[1].Selected {
		t.Errorf("selected flags = %v, %v", all.Ledgers[0].Selected, all.Ledgers[1].Selected)
	}
	if all.Ledgers[0].Count != 1 || all.Ledgers[0].Totals.Net.Fixed() != "100.00" {
		t.Errorf("summary = %+v", all.Ledgers[0])
	}
}

func TestUpdateAndDeleteLedger(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")

	if rec := ts.do(t, http.MethodPut, "/ledgers/"+l.ID, `{"name":"Road Trip"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d", rec.Code)
	}
	got := decode[ledgerDetail](t, ts.do(t, http.MethodGet, "/ledgers/"+l.ID, ""))
	if got.Name != "Road Trip" || got.CreatedAt != l.CreatedAt {
		t.Errorf("ledger after rename = %+v", got)
	}

	if rec := ts.do(t, http.MethodDelete, "/ledgers/"+l.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/ledgers/"+l.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted ledger status = %d, want 404", rec.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"blank ledger name", http.MethodPost, "/ledgers", `{"name":" "}`, http.StatusUnprocessableEntity},
		{"blank rename", http.MethodPut, "/ledgers/" + l.ID, `{"name":""}`, http.StatusUnprocessableEntity},
		{"bad kind", http.MethodPost, "/ledgers/" + l.ID + "/expenses", validExpenseJSON(map[string]any{"type": "x"}), http.StatusUnprocessableEntity},
		{"bad update", http.MethodPut, "/ledgers/" + l.ID + "/expenses/e", validExpenseJSON(map[string]any{"amount": "0"}), http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, "/ledgers", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
	if got := ts.store.Revision(); got != 1 {
		t.Errorf("revision = %d, rejected requests must not mutate", got)
	}
}

// Updates and deletes of unknown ids succeed without effect. Inserts into
// an unknown ledger are the exception: the client gets a 404.
func TestUnknownIDs(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")
	before := ts.store.Revision()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"rename missing ledger", http.MethodPut, "/ledgers/nope", `{"name":"X"}`, http.StatusNoContent},
		{"delete missing ledger", http.MethodDelete, "/ledgers/nope", "", http.StatusNoContent},
		{"expense into missing ledger", http.MethodPost, "/ledgers/nope/expenses", validExpenseJSON(nil), http.StatusNotFound},
		{"update missing expense", http.MethodPut, "/ledgers/" + l.ID + "/expenses/nope", validExpenseJSON(nil), http.StatusNoContent},
		{"delete missing expense", http.MethodDelete, "/ledgers/" + l.ID + "/expenses/nope", "", http.StatusNoContent},
		{"get missing ledger", http.MethodGet, "/ledgers/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, tt.method, tt.target, tt.body); rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
	if ts.store.Revision() != before {
		t.Errorf("revision moved from %d to %d", before, ts.store.Revision())
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")
	first := ts.createExpense(t, l.ID, "cash-in", "100")
	ts.createExpense(t, l.ID, "cash-out", "30")

	body := validExpenseJSON(map[string]any{"type": "cash-in", "amount": "150", "details": "Salary"})
	if rec := ts.do(t, http.MethodPut, "/ledgers/"+l.ID+"/expenses/"+first.ID, body); rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d", rec.Code)
	}
	got := decode[ledgerDetail](t, ts.do(t, http.MethodGet, "/ledgers/"+l.ID, ""))
	if got.Expenses[1].ID != first.ID || got.Expenses[1].Details != "Salary" {
		t.Errorf("updated expense = %+v, want same id and position", got.Expenses[1])
	}
	if got.Totals.Net.Fixed() != "120.00" {
		t.Errorf("net = %s, want 120.00", got.Totals.Net.Fixed())
	}

	if rec := ts.do(t, http.MethodDelete, "/ledgers/"+l.ID+"/expenses/"+first.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	got = decode[ledgerDetail](t, ts.do(t, http.MethodGet, "/ledgers/"+l.ID, ""))
	if len(got.Expenses) != 1 || got.Totals.Net.Fixed() != "-30.00" {
		t.Errorf("after delete: %d expenses, net %s", len(got.Expenses), got.Totals.Net.Fixed())
	}
}

func TestSelection(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")

	view := decode[selectionView](t, ts.do(t, http.MethodGet, "/selection", ""))
	if view.ID != nil || view.Ledger != nil {
		t.Fatalf("initial selection = %+v, want empty", view)
	}

	view = decode[selectionView](t, ts.do(t, http.MethodPut, "/selection", fmt.Sprintf(`{"id":%q}`, l.ID)))
	if view.Ledger == nil || view.Ledger.ID != l.ID {
		t.Fatalf("selection = %+v", view)
	}

	ts.do(t, http.MethodDelete, "/ledgers/"+l.ID, "")
	view = decode[selectionView](t, ts.do(t, http.MethodGet, "/selection", ""))
	if view.Ledger != nil {
		t.Errorf("deleted ledger still resolved: %+v", view.Ledger)
	}

	view = decode[selectionView](t, ts.do(t, http.MethodPut, "/selection", `{"id":null}`))
	if view.ID != nil {
		t.Errorf("selection not cleared: %v", *view.ID)
	}
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Goa Trip")
	ts.createExpense(t, l.ID, "cash-in", "5000")
	ts.createExpense(t, l.ID, "cash-out", "1200")

	rec := ts.do(t, http.MethodGet, "/ledgers/"+l.ID+"/export/csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Goa_Trip_expenses.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(rec.Body.Bytes(), []byte("\ufeff")))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	last := records[len(records)-1]
	if last[1] != "TOTALS" || last[6] != "3800.00" {
		t.Errorf("totals row = %v", last)
	}
}

func TestExportCache(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")
	ts.createExpense(t, l.ID, "cash-in", "10")
	target := "/ledgers/" + l.ID + "/export/xlsx"

	first := ts.do(t, http.MethodGet, target, "")
	second := ts.do(t, http.MethodGet, target, "")
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status = %d, %d", first.Code, second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("cached export differs from the rendered one")
	}
	if hits, misses := atomic.LoadInt64(&ts.appMetrics.cacheHits), atomic.LoadInt64(&ts.appMetrics.cacheMisses); hits != 1 || misses != 1 {
		t.Errorf("hits = %d, misses = %d, want 1 and 1", hits, misses)
	}

	// A mutation changes the revision and drops the ledger's entries.
	ts.createExpense(t, l.ID, "cash-out", "4")
	if ts.exportCache.Size() != 0 {
		t.Errorf("cache size = %d after mutation, want 0", ts.exportCache.Size())
	}
	ts.do(t, http.MethodGet, target, "")
	if misses := atomic.LoadInt64(&ts.appMetrics.cacheMisses); misses != 2 {
		t.Errorf("misses = %d, want 2", misses)
	}
}

// gatedRenderer blocks every render until release is closed.
type gatedRenderer struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedRenderer) Render(ctx context.Context, _ export.Format, _ core.Ledger) ([]byte, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("rendered"), nil
}

func TestExportOutlivesFirstCaller(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")
	g := &gatedRenderer{started: make(chan struct{}), release: make(chan struct{})}
	ts.renderer = g
	target := "/ledgers/" + l.ID + "/export/csv"

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.Handler.ServeHTTP(httptest.NewRecorder(), req)
	}()

	<-g.started
	cancel()
	close(g.release)
	<-done

	// The render finished for everyone sharing it, so the next caller is
	// served from the cache.
	rec := ts.do(t, http.MethodGet, target, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "rendered" {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if n := g.calls.Load(); n != 1 {
		t.Errorf("renders = %d, want 1", n)
	}
}

func TestExportErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")

	if rec := ts.do(t, http.MethodGet, "/ledgers/"+l.ID+"/export/docx", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown format status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/ledgers/nope/export/pdf", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing ledger status = %d, want 404", rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/ledgers/"+l.ID+"/export/pdf", "")
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("pdf export status = %d", rec.Code)
	}
}

func TestPersistFailureKeepsChange(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.slot.fail.Store(true)

	rec := ts.do(t, http.MethodPost, "/ledgers", `{"name":"Unsaved"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "could not be saved") {
		t.Errorf("body = %s", rec.Body.String())
	}

	list := decode[ledgerList](t, ts.do(t, http.MethodGet, "/ledgers", ""))
	if len(list.Ledgers) != 1 || list.Ledgers[0].Name != "Unsaved" {
		t.Errorf("ledgers = %+v, want the unsaved ledger in memory", list.Ledgers)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		ts.createLedger(t, fmt.Sprintf("L%d", i))
	}
	rec := ts.do(t, http.MethodPost, "/ledgers", `{"name":"L3"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
	// Reads are not limited.
	if rec := ts.do(t, http.MethodGet, "/ledgers", ""); rec.Code != http.StatusOK {
		t.Errorf("read status = %d", rec.Code)
	}
}

func TestRoutingAndHeaders(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodGet, "/nowhere", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	var notFound ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &notFound); err != nil || notFound.Error == "" {
		t.Errorf("unknown path body = %q, want a JSON error", rec.Body.String())
	}

	tests := []struct {
		method, path string
		allow        []string
	}{
		{http.MethodPatch, "/ledgers", []string{"GET", "POST"}},
		{http.MethodPost, "/ledgers/some-id", []string{"GET", "PUT", "DELETE"}},
		{http.MethodDelete, "/selection", []string{"GET", "PUT"}},
	}
	for _, tt := range tests {
		rec := ts.do(t, tt.method, tt.path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tt.method, tt.path, rec.Code)
			continue
		}
		allow := rec.Header().Get("Allow")
		for _, m := range tt.allow {
			if !strings.Contains(allow, m) {
				t.Errorf("%s %s Allow = %q, missing %s", tt.method, tt.path, allow, m)
			}
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s %s Content-Type = %q", tt.method, tt.path, ct)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error != "method not allowed" {
			t.Errorf("%s %s body = %q", tt.method, tt.path, rec.Body.String())
		}
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})
	l := ts.createLedger(t, "Trip")
	ts.createExpense(t, l.ID, "cash-in", "1")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	for _, want := range []string{"expenses_added_total 1", "ledgers 1", "http_requests_total"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics missing %q:\n%s", want, rec.Body.String())
		}
	}
}
