package core

// BalancedExpense pairs an expense with the ledger balance right after it
// was recorded.
type BalancedExpense struct {
	Expense
	Balance Amount `json:"balance"`
}

// Totals aggregates a ledger. Net always equals FinalBalance of the same ledger.
type Totals struct {
	CashIn  Amount `json:"cashIn"`
	CashOut Amount `json:"cashOut"`
	Net     Amount `json:"balance"`
}

// signed returns the effect of e on the balance. Anything that is not
// cash-in counts as cash-out, so totals and balances agree on malformed
// records too.
func signed(e Expense) Amount {
	if e.Kind == CashIn {
		return e.Amount
	}
	return e.Amount.Neg()
}

// FinalBalance folds the expenses oldest to newest. Storage order is newest
// first, so the walk runs backwards.
func FinalBalance(l Ledger) Amount {
	var total Amount
	for i := len(l.Expenses) - 1; i >= 0; i-- {
		total = total.Add(signed(l.Expenses[i]))
	}
	return total
}

// Balances returns the expenses of l in storage order, each paired with the
// running balance immediately after it. A nil ledger yields an empty slice.
//
// The final balance is computed first, then unwound newest to oldest: the
// newest expense gets the final balance, and each step removes the effect
// of the expense just emitted.
func Balances(l *Ledger) []BalancedExpense {
	if l == nil {
		return []BalancedExpense{}
	}
	running := FinalBalance(*l)
	out := make([]BalancedExpense, 0, len(l.Expenses))
	for _, e := range l.Expenses {
		e.Attachments = cloneAttachments(e.Attachments)
		out = append(out, BalancedExpense{Expense: e, Balance: running})
		running = running.Sub(signed(e))
	}
	return out
}

// TotalsOf sums cash in and cash out for l.
func TotalsOf(l Ledger) Totals {
	var t Totals
	for _, e := range l.Expenses {
		if e.Kind == CashIn {
			t.CashIn = t.CashIn.Add(e.Amount)
		} else {
			t.CashOut = t.CashOut.Add(e.Amount)
		}
	}
	t.Net = t.CashIn.Sub(t.CashOut)
	return t
}

// TotalsOfBalanced sums an already derived list, as exports receive it.
func TotalsOfBalanced(rows []BalancedExpense) Totals {
	l := Ledger{Expenses: make([]Expense, len(rows))}
	for i, r := range rows {
		l.Expenses[i] = r.Expense
	}
	return TotalsOf(l)
}
