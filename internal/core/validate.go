package core

import (
	"fmt"
	"strings"
)

// ValidateLedgerName rejects empty and whitespace-only names.
// The store accepts any name; callers use this before AddLedger/UpdateLedger.
func ValidateLedgerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: too long (max 200 characters)", ErrEmptyName)
	}
	return nil
}

// Validate checks the fields a client must provide for an expense.
func (d ExpenseData) Validate() error {
	if !d.Kind.Valid() {
		return ErrInvalidKind
	}
	if _, err := ParseTimestamp(d.Timestamp); err != nil {
		return err
	}
	if strings.TrimSpace(d.Details) == "" {
		return ErrEmptyDetails
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(d.PaymentMode) == "" {
		return ErrEmptyPaymentMode
	}
	if d.Amount.Decimal().LessThan(minAmount) {
		return ErrInvalidAmount
	}
	if len(d.Attachments) > MaxAttachments {
		return fmt.Errorf("%w: %d given, max %d", ErrTooManyAttachments, len(d.Attachments), MaxAttachments)
	}
	for i, a := range d.Attachments {
		if strings.TrimSpace(a.Name) == "" || a.Data == "" {
			return fmt.Errorf("%w: #%d", ErrInvalidAttachment, i+1)
		}
	}
	return nil
}
