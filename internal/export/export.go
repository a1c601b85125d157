package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"ledger/internal/core"
)

// Format is an export file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a file extension, with or without the leading dot.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// FileName returns "<name>_expenses.<ext>" with every whitespace character
// in the ledger name replaced by an underscore.
func FileName(ledgerName string, f Format) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, ledgerName)
	return fmt.Sprintf("%s_expenses.%s", name, f)
}

// Renderer turns ledgers into export files.
type Renderer struct {
	Location *time.Location
	Now      func() time.Time
}

// NewRenderer returns a renderer showing times in loc (UTC when nil).
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{Location: loc, Now: time.Now}
}

// Write renders l in format f to w.
func (r *Renderer) Write(ctx context.Context, w io.Writer, f Format, l core.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := NewTable(l, r.Location)
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	case FormatPDF:
		return WritePDF(w, t, r.Now())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// Render is Write into a fresh buffer.
func (r *Renderer) Render(ctx context.Context, f Format, l core.Ledger) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Write(ctx, &buf, f, l); err != nil {
		return nil, fmt.Errorf("render %s: %w", f, err)
	}
	return buf.Bytes(), nil
}
