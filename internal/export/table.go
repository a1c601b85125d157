// Package export renders a ledger with running balances as CSV, XLSX or PDF.
package export

import (
	"time"

	"ledger/internal/core"
)

// Columns is the header shared by every tabular format.
var Columns = []string{"Date & Time", "Details", "Category", "Mode", "Cash In", "Cash Out", "Balance"}

const (
	dateTimeLayout = "2006-01-02 15:04"
	dateLayout     = "2006-01-02"
	totalsLabel    = "TOTALS"
)

// Table is a ledger prepared for export: expenses newest first, each with
// the balance right after it, plus the ledger totals.
type Table struct {
	Name     string
	Rows     []core.BalancedExpense
	Totals   core.Totals
	Location *time.Location
}

// NewTable derives balances and totals for l. Timestamps are shown in loc,
// or UTC when loc is nil.
func NewTable(l core.Ledger, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	rows := core.Balances(&l)
	return Table{
		Name:     l.Name,
		Rows:     rows,
		Totals:   core.TotalsOfBalanced(rows),
		Location: loc,
	}
}

// When formats the expense timestamp with layout. Unparseable timestamps
// are shown as stored.
func (t Table) When(e core.BalancedExpense, layout string) string {
	ts, err := core.ParseTimestamp(e.Timestamp)
	if err != nil {
		return e.Timestamp
	}
	return ts.In(t.Location).Format(layout)
}

// split returns the cash-in and cash-out cells for e; one of them is empty.
func split(e core.BalancedExpense) (in, out string) {
	if e.Kind == core.CashIn {
		return e.Amount.Fixed(), ""
	}
	return "", e.Amount.Fixed()
}

// Records renders the header, one line per expense, an empty spacer line
// and the totals line, all as text.
func (t Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+3)
	out = append(out, Columns)
	for _, e := range t.Rows {
		in, cashOut := split(e)
		out = append(out, []string{
			t.When(e, dateTimeLayout),
			e.Details,
			e.Category,
			e.PaymentMode,
			in,
			cashOut,
			e.Balance.Fixed(),
		})
	}
	out = append(out, make([]string, len(Columns)))
	out = append(out, t.totalsRecord())
	return out
}

func (t Table) totalsRecord() []string {
	return []string{"", totalsLabel, "", "", t.Totals.CashIn.Fixed(), t.Totals.CashOut.Fixed(), t.Totals.Net.Fixed()}
}
