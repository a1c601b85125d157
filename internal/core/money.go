// Package core provides money parsing and handling utilities.
//
// This file contains the Amount type used for every expense value and the
// parser that turns user input into it.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minAmount is the smallest amount a client may record.
var minAmount = decimal.New(1, -2)

// Amount is a non-negative decimal money value. It is stored as a plain
// JSON number so persisted ledgers stay readable by other tools.
type Amount struct {
	d decimal.Decimal
}

// NewAmount wraps a decimal value.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// AmountFromInt returns an amount with no fractional part.
func AmountFromInt(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// MustAmount parses s and panics on failure. Meant for tests and constants.
func MustAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return Amount{d: d}
}

// ParseAmount converts user input into an Amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up to two decimal places. Signs are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("12.345") -> 12.35
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Amount{}, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return Amount{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{d: d.Round(2)}, nil
}

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

func (a Amount) IsZero() bool { return a.d.IsZero() }

func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// Equal compares values, ignoring representation (1.50 equals 1.5).
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) String() string { return a.d.String() }

// Fixed formats the amount with exactly two decimals, for display and exports.
func (a Amount) Fixed() string { return a.d.StringFixed(2) }

// Float returns the amount as float64 for spreadsheet cells.
// Use Amount arithmetic for calculations.
func (a Amount) Float() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.d.UnmarshalJSON(b)
}
