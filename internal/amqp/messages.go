package amqp

import (
	"encoding/json"
	"time"

	"ledger/internal/core"
)

// LedgerChangeMessage is a lightweight notice that a ledger changed.
// It carries identifiers only; consumers read the current collection from
// storage instead of trusting a payload that may already be stale.
type LedgerChangeMessage struct {
	Op         core.ChangeOp `json:"op"`
	LedgerID   string        `json:"ledger_id"`
	LedgerName string        `json:"ledger_name,omitempty"`
	ExpenseID  string        `json:"expense_id,omitempty"`
	Revision   uint64        `json:"revision"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewLedgerChangeMessage builds the message for ev. A zero event timestamp
// is replaced by the current time.
func NewLedgerChangeMessage(ev core.ChangeEvent) *LedgerChangeMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &LedgerChangeMessage{
		Op:         ev.Op,
		LedgerID:   ev.LedgerID,
		LedgerName: ev.LedgerName,
		ExpenseID:  ev.ExpenseID,
		Revision:   ev.Revision,
		Timestamp:  ts,
	}
}

// Event converts the message back into a domain event.
func (m *LedgerChangeMessage) Event() core.ChangeEvent {
	return core.ChangeEvent{
		Op:         m.Op,
		LedgerID:   m.LedgerID,
		LedgerName: m.LedgerName,
		ExpenseID:  m.ExpenseID,
		Revision:   m.Revision,
		Timestamp:  m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangeMessageFromJSON creates a message from JSON bytes
func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
