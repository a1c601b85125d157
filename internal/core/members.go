package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Extra holds the members of a stored JSON object that do not map onto a
// Go field: unknown keys, and known keys whose value has the wrong shape.
// They are written back unchanged so a rewrite never loses stored data.
type Extra map[string]json.RawMessage

// without returns a copy of x lacking key. The receiver is never modified
// because snapshots share it.
func (x Extra) without(key string) Extra {
	if _, ok := x[key]; !ok {
		return x
	}
	out := maps.Clone(x)
	delete(out, key)
	if len(out) == 0 {
		return nil
	}
	return out
}

type member struct {
	key   string
	value any
}

// decoder returns a func that decodes a member value into dst. dst is only
// assigned when the whole value decodes.
func decoder[T any](dst *T) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// decodeObject decodes the JSON object data into the known fields and
// returns every member that could not be placed.
func decodeObject(data []byte, known map[string]func(json.RawMessage) error) (Extra, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	var extra Extra
	for key, raw := range members {
		if decode, ok := known[key]; ok && decode(raw) == nil {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[key] = raw
	}
	return extra, nil
}

// encodeObject writes fields in order, then the remaining extra members
// sorted by key. A field that also appears in extra is written from extra.
func encodeObject(fields []member, extra Extra) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	write := func(key string, value []byte) {
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f.key] = true
		if raw, ok := extra[f.key]; ok {
			write(f.key, raw)
			continue
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.key, err)
		}
		write(f.key, v)
	}
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		if !seen[key] {
			write(key, extra[key])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a Attachment) MarshalJSON() ([]byte, error) {
	return encodeObject([]member{
		{"name", a.Name},
		{"type", a.Type},
		{"dataUrl", a.Data},
	}, a.Extra)
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var out Attachment
	extra, err := decodeObject(data, map[string]func(json.RawMessage) error{
		"name":    decoder(&out.Name),
		"type":    decoder(&out.Type),
		"dataUrl": decoder(&out.Data),
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*a = out
	return nil
}

func (e Expense) members() []member {
	return []member{
		{"id", e.ID},
		{"type", e.Kind},
		{"date", e.Timestamp},
		{"details", e.Details},
		{"category", e.Category},
		{"mode", e.PaymentMode},
		{"attachments", e.Attachments},
		{"amount", e.Amount},
	}
}

func (e Expense) MarshalJSON() ([]byte, error) {
	return encodeObject(e.members(), e.Extra)
}

func (e *Expense) UnmarshalJSON(data []byte) error {
	var out Expense
	extra, err := decodeObject(data, map[string]func(json.RawMessage) error{
		"id":          decoder(&out.ID),
		"type":        decoder(&out.Kind),
		"date":        decoder(&out.Timestamp),
		"details":     decoder(&out.Details),
		"category":    decoder(&out.Category),
		"mode":        decoder(&out.PaymentMode),
		"attachments": decoder(&out.Attachments),
		"amount":      decoder(&out.Amount),
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*e = out
	return nil
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	return encodeObject([]member{
		{"id", l.ID},
		{"name", l.Name},
		{"createdAt", l.CreatedAt},
		{"expenses", l.Expenses},
	}, l.Extra)
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var out Ledger
	extra, err := decodeObject(data, map[string]func(json.RawMessage) error{
		"id":        decoder(&out.ID),
		"name":      decoder(&out.Name),
		"createdAt": decoder(&out.CreatedAt),
		"expenses":  decoder(&out.Expenses),
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*l = out
	return nil
}

// BalancedExpense needs its own codec: the promoted Expense methods would
// drop the balance.

func (b BalancedExpense) MarshalJSON() ([]byte, error) {
	return encodeObject(append(b.Expense.members(), member{"balance", b.Balance}), b.Extra.without("balance"))
}

func (b *BalancedExpense) UnmarshalJSON(data []byte) error {
	var e Expense
	if err := e.UnmarshalJSON(data); err != nil {
		return err
	}
	var balance Amount
	if raw, ok := e.Extra["balance"]; ok {
		if err := json.Unmarshal(raw, &balance); err != nil {
			return fmt.Errorf("decode balance: %w", err)
		}
		e.Extra = e.Extra.without("balance")
	}
	*b = BalancedExpense{Expense: e, Balance: balance}
	return nil
}
