package http

import (
	"strings"

	"ledger/internal/core"
)

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ledgerSummary is a ledger as listed, without its expenses.
type ledgerSummary struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CreatedAt string      `json:"createdAt"`
	Count     int         `json:"count"`
	Totals    core.Totals `json:"totals"`
	Selected  bool        `json:"selected"`
}

// ledgerDetail is a ledger with derived balances, newest expense first.
type ledgerDetail struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	CreatedAt  string                 `json:"createdAt"`
	Expenses   []core.BalancedExpense `json:"expenses"`
	Totals     core.Totals            `json:"totals"`
	ByCategory []core.CategoryAmount  `json:"byCategory"`
}

type ledgerList struct {
	Ledgers []ledgerSummary `json:"ledgers"`
}

// selectionView answers GET /selection. Ledger is null when nothing is
// selected or the selected ledger is gone.
type selectionView struct {
	ID     *string       `json:"id"`
	Ledger *ledgerDetail `json:"ledger"`
}

func summarize(l core.Ledger, selectedID string) ledgerSummary {
	return ledgerSummary{
		ID:        l.ID,
		Name:      l.Name,
		CreatedAt: l.CreatedAt,
		Count:     len(l.Expenses),
		Totals:    core.TotalsOf(l),
		Selected:  l.ID == selectedID,
	}
}

func detail(l core.Ledger) ledgerDetail {
	ov := core.Overview(l)
	return ledgerDetail{
		ID:         l.ID,
		Name:       l.Name,
		CreatedAt:  l.CreatedAt,
		Expenses:   core.Balances(&l),
		Totals:     ov.Totals,
		ByCategory: ov.ByCategory,
	}
}
