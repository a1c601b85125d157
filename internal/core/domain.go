package core

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	CashIn  Kind = "cash-in"
	CashOut Kind = "cash-out"
)

// MaxAttachments is the number of files a single expense may carry.
const MaxAttachments = 5

// timestampLayout matches the millisecond UTC form used for stored timestamps.
const timestampLayout = "2006-01-02T15:04:05.000Z"

type (
	// Kind tells whether an expense brings cash in or takes it out.
	Kind string

	// Attachment is a file already encoded for transport. Data holds the
	// base64 payload (usually a data URL) and is never decoded by the store.
	Attachment struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Data string `json:"dataUrl"`
		// Extra keeps stored members this type does not model.
		Extra Extra `json:"-"`
	}

	// Expense is a single cash movement inside a ledger.
	Expense struct {
		ID          string       `json:"id"`
		Kind        Kind         `json:"type"`
		Timestamp   string       `json:"date"`
		Details     string       `json:"details"`
		Category    string       `json:"category"`
		PaymentMode string       `json:"mode"`
		Attachments []Attachment `json:"attachments"`
		Amount      Amount       `json:"amount"`
		Extra       Extra        `json:"-"`
	}

	// ExpenseData carries every expense field except the id. It is the
	// caller's input for inserts and full-record replacements.
	ExpenseData struct {
		Kind        Kind         `json:"type"`
		Timestamp   string       `json:"date"`
		Details     string       `json:"details"`
		Category    string       `json:"category"`
		PaymentMode string       `json:"mode"`
		Attachments []Attachment `json:"attachments"`
		Amount      Amount       `json:"amount"`
	}

	// Ledger is a named collection of expenses, newest first.
	Ledger struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt string    `json:"createdAt"`
		Expenses  []Expense `json:"expenses"`
		Extra     Extra     `json:"-"`
	}
)

// DefaultCategories are offered by clients before falling back to a custom one.
var DefaultCategories = []string{"Food", "Rent", "Utilities", "Transport", "Health Care"}

var (
	ErrEmptyName          = errors.New("empty ledger name")
	ErrInvalidKind        = errors.New("invalid expense type")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrEmptyDetails       = errors.New("empty details")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyPaymentMode   = errors.New("empty payment mode")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrInvalidAttachment  = errors.New("invalid attachment")
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == CashIn || k == CashOut
}

// WithID builds the stored expense for these fields.
func (d ExpenseData) WithID(id string) Expense {
	return Expense{
		ID:          id,
		Kind:        d.Kind,
		Timestamp:   d.Timestamp,
		Details:     d.Details,
		Category:    d.Category,
		PaymentMode: d.PaymentMode,
		Attachments: cloneAttachments(d.Attachments),
		Amount:      d.Amount,
	}
}

// Data returns the expense fields without the id.
func (e Expense) Data() ExpenseData {
	return ExpenseData{
		Kind:        e.Kind,
		Timestamp:   e.Timestamp,
		Details:     e.Details,
		Category:    e.Category,
		PaymentMode: e.PaymentMode,
		Attachments: cloneAttachments(e.Attachments),
		Amount:      e.Amount,
	}
}

// Clone returns a copy of the ledger that shares no slices or maps with l.
func (l Ledger) Clone() Ledger {
	out := l
	out.Extra = maps.Clone(l.Extra)
	if l.Expenses != nil {
		out.Expenses = make([]Expense, len(l.Expenses))
		for i, e := range l.Expenses {
			e.Attachments = cloneAttachments(e.Attachments)
			e.Extra = maps.Clone(e.Extra)
			out.Expenses[i] = e
		}
	}
	return out
}

// Renamed returns l with a new name. Other stored members are kept.
func (l Ledger) Renamed(name string) Ledger {
	l.Name = name
	l.Extra = l.Extra.without("name")
	return l
}

// WithExpenses returns l holding expenses. Other stored members are kept.
func (l Ledger) WithExpenses(expenses []Expense) Ledger {
	l.Expenses = expenses
	l.Extra = l.Extra.without("expenses")
	return l
}

// Expense returns the expense with the given id.
func (l Ledger) Expense(id string) (Expense, bool) {
	i := slices.IndexFunc(l.Expenses, func(e Expense) bool { return e.ID == id })
	if i < 0 {
		return Expense{}, false
	}
	return l.Expenses[i], true
}

// FormatTimestamp renders t the way ledger and expense timestamps are stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp, with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return t, nil
}

func cloneAttachments(in []Attachment) []Attachment {
	if in == nil {
		return nil
	}
	out := slices.Clone(in)
	for i := range out {
		out[i].Extra = maps.Clone(out[i].Extra)
	}
	return out
}
