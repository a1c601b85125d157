package core

import "slices"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Amount `json:"amount"`
}

// LedgerOverview is the compact summary clients show next to a ledger.
type LedgerOverview struct {
	Totals     Totals           `json:"totals"`
	Count      int              `json:"count"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// Overview summarises l. ByCategory only counts cash-out expenses and is
// sorted by amount, largest first; ties keep first-seen order.
func Overview(l Ledger) LedgerOverview {
	ov := LedgerOverview{
		Totals:     TotalsOf(l),
		Count:      len(l.Expenses),
		ByCategory: []CategoryAmount{},
	}
	index := map[string]int{}
	for _, e := range l.Expenses {
		if e.Kind == CashIn {
			continue
		}
		i, ok := index[e.Category]
		if !ok {
			i = len(ov.ByCategory)
			index[e.Category] = i
			ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: e.Category})
		}
		ov.ByCategory[i].Amount = ov.ByCategory[i].Amount.Add(e.Amount)
	}
	slices.SortStableFunc(ov.ByCategory, func(a, b CategoryAmount) int {
		return b.Amount.Decimal().Cmp(a.Amount.Decimal())
	})
	return ov
}
