package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// StorageKey is the slot key holding the serialized ledger collection.
const StorageKey = "trip-tracker-ledgers"

// ErrPersist marks a mutation whose in-memory effect was applied but whose
// write to durable storage failed.
var ErrPersist = errors.New("persist ledgers")

// ChangePublisher is notified after every persisted mutation.
type ChangePublisher interface {
	PublishLedgerChange(ctx context.Context, ev core.ChangeEvent) error
}

// LedgerStoreOptions configures a LedgerStore. Zero values pick defaults.
type LedgerStoreOptions struct {
	// Key overrides StorageKey.
	Key string
	// Publisher receives change events; nil disables publishing.
	Publisher ChangePublisher
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

type snapshot struct {
	ledgers  []core.Ledger
	revision uint64
}

// LedgerStore owns the ledger collection and the current selection.
//
// Every mutation builds a new collection and swaps it in, then writes the
// whole collection to the slot. Readers work on immutable snapshots and
// never block writers. Writers are serialized by mu.
type LedgerStore struct {
	slot      storage.Slot
	key       string
	publisher ChangePublisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	state    atomic.Pointer[snapshot]
	selected atomic.Pointer[string]

	subMu   sync.Mutex
	subs    map[uint64]chan *core.Ledger
	nextSub uint64
}

// NewLedgerStore loads the collection from slot. A missing or unreadable
// value starts the store empty; the failure is logged, not returned.
func NewLedgerStore(ctx context.Context, slot storage.Slot, opts LedgerStoreOptions) *LedgerStore {
	s := &LedgerStore{
		slot:      slot,
		key:       opts.Key,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		subs:      make(map[uint64]chan *core.Ledger),
	}
	if s.key == "" {
		s.key = StorageKey
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	ledgers, err := LoadSnapshot(ctx, slot, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.InfoContext(ctx, "No stored ledgers, starting empty", "key", s.key)
	case err != nil:
		s.logger.WarnContext(ctx, "Stored ledgers unreadable, starting empty", "key", s.key, "error", err)
	default:
		s.logger.InfoContext(ctx, "Loaded ledgers", "key", s.key, "count", len(ledgers))
	}
	if ledgers == nil {
		ledgers = []core.Ledger{}
	}
	s.state.Store(&snapshot{ledgers: ledgers})
	return s
}

// LoadSnapshot reads and decodes the collection stored under key. Records
// are adopted as they are, without validation.
func LoadSnapshot(ctx context.Context, slot storage.Slot, key string) ([]core.Ledger, error) {
	raw, err := slot.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var ledgers []core.Ledger
	if err := json.Unmarshal(raw, &ledgers); err != nil {
		return nil, fmt.Errorf("decode ledgers: %w", err)
	}
	return ledgers, nil
}

// Select marks a ledger as the one in focus. An empty id clears the
// selection. The id is not checked against the collection.
func (s *LedgerStore) Select(id string) {
	s.mu.Lock()
	if id == "" {
		s.selected.Store(nil)
	} else {
		s.selected.Store(&id)
	}
	s.mu.Unlock()
	s.notifySelection()
}

// SelectedID returns the raw selection, which may point at a deleted ledger.
func (s *LedgerStore) SelectedID() string {
	if p := s.selected.Load(); p != nil {
		return *p
	}
	return ""
}

// Selected resolves the selection against the current collection.
func (s *LedgerStore) Selected() (core.Ledger, bool) {
	id := s.SelectedID()
	if id == "" {
		return core.Ledger{}, false
	}
	return s.Ledger(id)
}

// Ledgers returns a copy of the whole collection in insertion order.
func (s *LedgerStore) Ledgers() []core.Ledger {
	cur := s.state.Load().ledgers
	out := make([]core.Ledger, len(cur))
	for i, l := range cur {
		out[i] = l.Clone()
	}
	return out
}

// Ledger returns a copy of the ledger with the given id.
func (s *LedgerStore) Ledger(id string) (core.Ledger, bool) {
	cur := s.state.Load().ledgers
	i := indexOfLedger(cur, id)
	if i < 0 {
		return core.Ledger{}, false
	}
	return cur[i].Clone(), true
}

// Search returns ledgers whose name contains term, ignoring case.
// An empty term returns every ledger.
func (s *LedgerStore) Search(term string) []core.Ledger {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.Ledgers()
	}
	var out []core.Ledger
	for _, l := range s.state.Load().ledgers {
		if strings.Contains(strings.ToLower(l.Name), term) {
			out = append(out, l.Clone())
		}
	}
	if out == nil {
		out = []core.Ledger{}
	}
	return out
}

// Revision counts applied mutations since the store was created.
func (s *LedgerStore) Revision() uint64 {
	return s.state.Load().revision
}

// AddLedger appends a new empty ledger.
func (s *LedgerStore) AddLedger(ctx context.Context, name string) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load().ledgers
	l := core.Ledger{
		ID:        s.uniqueID(func(id string) bool { return indexOfLedger(cur, id) >= 0 }),
		Name:      name,
		CreatedAt: core.FormatTimestamp(s.now()),
		Expenses:  []core.Expense{},
	}

	next := make([]core.Ledger, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, l)

	err := s.commit(ctx, next, core.ChangeEvent{Op: core.OpLedgerAdded, LedgerID: l.ID, LedgerName: l.Name})
	return l.Clone(), err
}

// UpdateLedger renames a ledger. Unknown ids are ignored.
func (s *LedgerStore) UpdateLedger(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load().ledgers
	i := indexOfLedger(cur, id)
	if i < 0 {
		s.logger.DebugContext(ctx, "Update of unknown ledger ignored", "ledger_id", id)
		return nil
	}

	next := slices.Clone(cur)
	next[i] = cur[i].Renamed(name)

	return s.commit(ctx, next, core.ChangeEvent{Op: core.OpLedgerUpdated, LedgerID: id, LedgerName: name})
}

// DeleteLedger removes a ledger and its expenses. If it was selected the
// selection is cleared. Unknown ids are ignored.
func (s *LedgerStore) DeleteLedger(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load().ledgers
	i := indexOfLedger(cur, id)
	if i < 0 {
		s.logger.DebugContext(ctx, "Delete of unknown ledger ignored", "ledger_id", id)
		return nil
	}
	name := cur[i].Name

	next := make([]core.Ledger, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)

	if s.SelectedID() == id {
		s.selected.Store(nil)
	}

	return s.commit(ctx, next, core.ChangeEvent{Op: core.OpLedgerDeleted, LedgerID: id, LedgerName: name})
}

// AddExpense prepends a new expense to the ledger. When the ledger does not
// exist nothing happens and the returned expense is the zero value.
func (s *LedgerStore) AddExpense(ctx context.Context, ledgerID string, data core.ExpenseData) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load().ledgers
	i := indexOfLedger(cur, ledgerID)
	if i < 0 {
		s.logger.DebugContext(ctx, "Expense for unknown ledger ignored", "ledger_id", ledgerID)
		return core.Expense{}, nil
	}

	e := data.WithID(s.uniqueID(func(id string) bool { return expenseIDTaken(cur, id) }))

	next := slices.Clone(cur)
	expenses := make([]core.Expense, 0, len(cur[i].Expenses)+1)
	expenses = append(expenses, e)
	expenses = append(expenses, cur[i].Expenses...)
	next[i] = cur[i].WithExpenses(expenses)

	err := s.commit(ctx, next, core.ChangeEvent{
		Op:         core.OpExpenseAdded,
		LedgerID:   ledgerID,
		LedgerName: cur[i].Name,
		ExpenseID:  e.ID,
	})
	return e.Data().WithID(e.ID), err
}

// UpdateExpense replaces every field of an expense except its id, keeping
// its position. Unknown ledger or expense ids are ignored.
func (s *LedgerStore) UpdateExpense(ctx context.Context, ledgerID, expenseID string, data core.ExpenseData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load().ledgers
	i := indexOfLedger(cur, ledgerID)
	if i < 0 {
		s.logger.DebugContext(ctx, "Expense update for unknown ledger ignored", "ledger_id", ledgerID)
		return nil
	}
	j := indexOfExpense(cur[i].Expenses, expenseID)
	if j < 0 {
		s.logger.DebugContext(ctx, "Update of unknown expense ignored", "ledger_id", ledgerID, "expense_id", expenseID)
		return nil
	}

	next := slices.Clone(cur)
	expenses := slices.Clone(cur[i].Expenses)
	expenses[j] = data.WithID(expenseID)
	next[i] = cur[i].WithExpenses(expenses)

	return s.commit(ctx, next, core.ChangeEvent{
		Op:         core.OpExpenseUpdated,
		LedgerID:   ledgerID,
		LedgerName: cur[i].Name,
		ExpenseID:  expenseID,
	})
}

// DeleteExpense removes an expense. Unknown ledger or expense ids are ignored.
func (s *LedgerStore) DeleteExpense(ctx context.Context, ledgerID, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load().ledgers
	i := indexOfLedger(cur, ledgerID)
	if i < 0 {
		s.logger.DebugContext(ctx, "Expense delete for unknown ledger ignored", "ledger_id", ledgerID)
		return nil
	}
	j := indexOfExpense(cur[i].Expenses, expenseID)
	if j < 0 {
		s.logger.DebugContext(ctx, "Delete of unknown expense ignored", "ledger_id", ledgerID, "expense_id", expenseID)
		return nil
	}

	next := slices.Clone(cur)
	old := cur[i].Expenses
	expenses := make([]core.Expense, 0, len(old)-1)
	expenses = append(expenses, old[:j]...)
	expenses = append(expenses, old[j+1:]...)
	next[i] = cur[i].WithExpenses(expenses)

	return s.commit(ctx, next, core.ChangeEvent{
		Op:         core.OpExpenseDeleted,
		LedgerID:   ledgerID,
		LedgerName: cur[i].Name,
		ExpenseID:  expenseID,
	})
}

// commit swaps in next, persists it and publishes ev. Callers hold s.mu.
// The swap happens before the write: a failed write leaves the new state
// in memory and is reported as ErrPersist.
func (s *LedgerStore) commit(ctx context.Context, next []core.Ledger, ev core.ChangeEvent) error {
	rev := s.state.Load().revision + 1
	s.state.Store(&snapshot{ledgers: next, revision: rev})
	defer s.notifySelection()

	if err := s.persist(ctx, next); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist ledgers",
			"operation", string(ev.Op),
			"ledger_id", ev.LedgerID,
			"expense_id", ev.ExpenseID,
			"revision", rev,
			"error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Ledgers persisted",
		"operation", string(ev.Op),
		"ledger_id", ev.LedgerID,
		"expense_id", ev.ExpenseID,
		"revision", rev)

	if s.publisher == nil {
		return nil
	}
	ev.Revision = rev
	ev.Timestamp = s.now()
	if err := s.publisher.PublishLedgerChange(ctx, ev); err != nil {
		// The change is durable; consumers catch up on their periodic resync.
		s.logger.ErrorContext(ctx, "Failed to publish ledger change",
			"operation", string(ev.Op),
			"ledger_id", ev.LedgerID,
			"error", err)
	}
	return nil
}

func (s *LedgerStore) persist(ctx context.Context, ledgers []core.Ledger) error {
	raw, err := json.Marshal(ledgers)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := s.slot.Put(ctx, s.key, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *LedgerStore) uniqueID(taken func(string) bool) string {
	for {
		if id := s.newID(); !taken(id) {
			return id
		}
	}
}

func indexOfLedger(ledgers []core.Ledger, id string) int {
	return slices.IndexFunc(ledgers, func(l core.Ledger) bool { return l.ID == id })
}

func indexOfExpense(expenses []core.Expense, id string) int {
	return slices.IndexFunc(expenses, func(e core.Expense) bool { return e.ID == id })
}

func expenseIDTaken(ledgers []core.Ledger, id string) bool {
	for _, l := range ledgers {
		if indexOfExpense(l.Expenses, id) >= 0 {
			return true
		}
	}
	return false
}
