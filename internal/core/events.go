package core

import "time"

// ChangeOp names a mutation applied to the ledger collection.
type ChangeOp string

const (
	OpLedgerAdded    ChangeOp = "ledger.added"
	OpLedgerUpdated  ChangeOp = "ledger.updated"
	OpLedgerDeleted  ChangeOp = "ledger.deleted"
	OpExpenseAdded   ChangeOp = "expense.added"
	OpExpenseUpdated ChangeOp = "expense.updated"
	OpExpenseDeleted ChangeOp = "expense.deleted"
)

// ChangeEvent describes a mutation that has been persisted.
// LedgerName is the name at the time of the change; consumers need it to
// clean up after deleted ledgers.
type ChangeEvent struct {
	Op         ChangeOp
	LedgerID   string
	LedgerName string
	ExpenseID  string
	Revision   uint64
	Timestamp  time.Time
}

// RemovesLedger reports whether the ledger no longer exists after the event.
func (e ChangeEvent) RemovesLedger() bool {
	return e.Op == OpLedgerDeleted
}
