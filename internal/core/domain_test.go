package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validData() ExpenseData {
	return ExpenseData{
		Kind:        CashOut,
		Timestamp:   "2025-03-01T10:30:00.000Z",
		Details:     "Dinner",
		Category:    "Food",
		PaymentMode: "Cash",
		Amount:      MustAmount("12.50"),
	}
}

func TestExpenseDataValidate(t *testing.T) {
	if err := validData().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tooMany := make([]Attachment, MaxAttachments+1)
	for i := range tooMany {
		tooMany[i] = Attachment{Name: "a.png", Type: "image/png", Data: "data:image/png;base64,AA=="}
	}

	cases := []struct {
		name   string
		mutate func(*ExpenseData)
		want   error
	}{
		{"bad kind", func(d *ExpenseData) { d.Kind = "refund" }, ErrInvalidKind},
		{"bad timestamp", func(d *ExpenseData) { d.Timestamp = "yesterday" }, ErrInvalidTimestamp},
		{"empty details", func(d *ExpenseData) { d.Details = "   " }, ErrEmptyDetails},
		{"empty category", func(d *ExpenseData) { d.Category = "" }, ErrEmptyCategory},
		{"empty mode", func(d *ExpenseData) { d.PaymentMode = "" }, ErrEmptyPaymentMode},
		{"zero amount", func(d *ExpenseData) { d.Amount = Amount{} }, ErrInvalidAmount},
		{"below a cent", func(d *ExpenseData) { d.Amount = MustAmount("0.001") }, ErrInvalidAmount},
		{"six attachments", func(d *ExpenseData) { d.Attachments = tooMany }, ErrTooManyAttachments},
		{"unnamed attachment", func(d *ExpenseData) { d.Attachments = []Attachment{{Data: "x"}} }, ErrInvalidAttachment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validData()
			tc.mutate(&d)
			if err := d.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}

	d := validData()
	d.Attachments = tooMany[:MaxAttachments]
	if err := d.Validate(); err != nil {
		t.Fatalf("five attachments should be accepted, got %v", err)
	}
}

func TestValidateLedgerName(t *testing.T) {
	if err := ValidateLedgerName("Goa Trip"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	for _, name := range []string{"", "   ", strings.Repeat("x", 201)} {
		if err := ValidateLedgerName(name); !errors.Is(err, ErrEmptyName) {
			t.Fatalf("%q: expected ErrEmptyName, got %v", name, err)
		}
	}
}

func TestWithIDAndDataDoNotShareAttachments(t *testing.T) {
	d := validData()
	d.Attachments = []Attachment{{Name: "r.png", Type: "image/png", Data: "AA=="}}
	e := d.WithID("e1")
	d.Attachments[0].Name = "changed"
	if e.Attachments[0].Name != "r.png" {
		t.Fatalf("WithID aliases the caller's attachments")
	}
	back := e.Data()
	back.Attachments[0].Name = "changed"
	if e.Attachments[0].Name != "r.png" {
		t.Fatalf("Data aliases the expense attachments")
	}
}

func TestLedgerClone(t *testing.T) {
	l := Ledger{ID: "l1", Expenses: []Expense{{ID: "e1", Attachments: []Attachment{{Name: "a"}}}}}
	c := l.Clone()
	c.Expenses[0].Details = "x"
	c.Expenses[0].Attachments[0].Name = "b"
	if l.Expenses[0].Details != "" || l.Expenses[0].Attachments[0].Name != "a" {
		t.Fatalf("Clone shares structure with the original")
	}
	if (Ledger{}).Clone().Expenses != nil {
		t.Fatalf("Clone should keep a nil expense list nil")
	}
}

func TestTimestamps(t *testing.T) {
	ts := time.Date(2025, 2, 3, 4, 5, 6, 789_000_000, time.FixedZone("IST", 5*3600+1800))
	got := FormatTimestamp(ts)
	if got != "2025-02-02T22:35:06.789Z" {
		t.Fatalf("FormatTimestamp = %s", got)
	}
	back, err := ParseTimestamp(got)
	if err != nil || !back.Equal(ts) {
		t.Fatalf("ParseTimestamp(%s) = %v, %v", got, back, err)
	}
	if _, err := ParseTimestamp("2025-02-03T04:05:06+05:30"); err != nil {
		t.Fatalf("offset timestamps should parse: %v", err)
	}
}
