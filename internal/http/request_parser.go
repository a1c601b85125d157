// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request bodies.
// Handlers receive already sanitized core values or a ready-made error
// response.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ledger/internal/core"
)

// maxBodyBytes bounds request bodies. Attachments travel inline as data
// URLs, so expenses can be large.
const maxBodyBytes = 32 << 20

// ledgerRequest is the body of POST /ledgers and PUT /ledgers/{id}.
type ledgerRequest struct {
	Name string `json:"name"`
}

// selectionRequest is the body of PUT /selection. A null or missing id
// clears the selection.
type selectionRequest struct {
	ID *string `json:"id"`
}

// expenseRequest is the body of expense inserts and updates. The amount is
// accepted as a JSON number or as a string with either decimal separator.
type expenseRequest struct {
	Type        core.Kind         `json:"type"`
	Date        string            `json:"date"`
	Details     string            `json:"details"`
	Category    string            `json:"category"`
	Mode        string            `json:"mode"`
	Attachments []core.Attachment `json:"attachments"`
	Amount      json.RawMessage   `json:"amount"`
}

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *ResponseBuilder {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return ErrorResponse(http.StatusUnsupportedMediaType, "content type must be application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return ErrorResponse(http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return BadRequestError("request body is empty")
		default:
			return BadRequestError("invalid JSON body: " + err.Error())
		}
	}
	if dec.More() {
		return BadRequestError("request body must hold a single JSON value")
	}
	return nil
}

// parseLedgerName decodes and validates a ledger request.
func parseLedgerName(w http.ResponseWriter, r *http.Request) (string, *ResponseBuilder) {
	var req ledgerRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		return "", resp
	}
	name := sanitizeInput(req.Name)
	if err := core.ValidateLedgerName(name); err != nil {
		return "", ValidationError("name", err)
	}
	return name, nil
}

// parseExpense decodes and validates an expense request.
func parseExpense(w http.ResponseWriter, r *http.Request) (core.ExpenseData, *ResponseBuilder) {
	var req expenseRequest
	if resp := decodeJSON(w, r, &req); resp != nil {
		return core.ExpenseData{}, resp
	}
	data, err := req.toData()
	if err != nil {
		return core.ExpenseData{}, ValidationError(fieldOf(err), err)
	}
	return data, nil
}

func (req expenseRequest) toData() (core.ExpenseData, error) {
	amount, err := parseAmountValue(req.Amount)
	if err != nil {
		return core.ExpenseData{}, err
	}
	data := core.ExpenseData{
		Kind:        core.Kind(strings.TrimSpace(string(req.Type))),
		Timestamp:   strings.TrimSpace(req.Date),
		Details:     sanitizeInput(req.Details),
		Category:    sanitizeInput(req.Category),
		PaymentMode: sanitizeInput(req.Mode),
		Attachments: req.Attachments,
		Amount:      amount,
	}
	for i := range data.Attachments {
		data.Attachments[i].Name = sanitizeInput(data.Attachments[i].Name)
		data.Attachments[i].Extra = nil
	}
	if err := data.Validate(); err != nil {
		return core.ExpenseData{}, err
	}
	return data, nil
}

// parseAmountValue accepts 12.5, "12.5" and "12,50".
func parseAmountValue(raw json.RawMessage) (core.Amount, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return core.Amount{}, core.ErrInvalidAmount
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.Amount{}, core.ErrInvalidAmount
		}
	}
	return core.ParseAmount(s)
}

// fieldOf names the request field a validation error is about.
func fieldOf(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyName):
		return "name"
	case errors.Is(err, core.ErrInvalidKind):
		return "type"
	case errors.Is(err, core.ErrInvalidTimestamp):
		return "date"
	case errors.Is(err, core.ErrEmptyDetails):
		return "details"
	case errors.Is(err, core.ErrEmptyCategory):
		return "category"
	case errors.Is(err, core.ErrEmptyPaymentMode):
		return "mode"
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, core.ErrTooManyAttachments), errors.Is(err, core.ErrInvalidAttachment):
		return "attachments"
	default:
		return ""
	}
}
