package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"ledger/internal/core"
)

const (
	pageMargin = 14.0
	rowHeight  = 7.0
)

type rgb struct{ r, g, b int }

var (
	headerFill   = rgb{20, 184, 166}
	cashInColor  = rgb{34, 197, 94}
	cashOutColor = rgb{239, 68, 68}
	textColor    = rgb{17, 24, 39}
)

// pdfColumns trades the date-and-time column for a date, as in print.
var (
	pdfColumns = []string{"Date", "Details", "Category", "Mode", "Cash In", "Cash Out", "Balance"}
	pdfWidths  = []float64{24, 46, 26, 20, 22, 22, 22}
	pdfAligns  = []string{"L", "L", "L", "L", "R", "R", "R"}
)

// WritePDF writes t as a printable report: a title, the expense table and
// one page per image attachment.
func WritePDF(w io.Writer, t Table, exportedAt time.Time) error {
	pdf, err := buildPDF(t, exportedAt)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

type pdfAttachment struct {
	core.Attachment
	details string
	image   string
	width   float64
	height  float64
}

func buildPDF(t Table, exportedAt time.Time) (*fpdf.Fpdf, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(exportedAt)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	attachments := registerAttachments(pdf, t.Rows)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 22)
	pdf.Text(pageMargin, 20, tr("TripTracker Ledger: "+t.Name))
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(pageMargin, 28, "Exported on: "+exportedAt.In(t.Location).Format(dateLayout))
	pdf.SetY(35)

	drawTable(pdf, t, tr)

	if len(attachments) > 0 {
		drawAttachments(pdf, attachments, tr)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

func drawTableHeader(pdf *fpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(headerFill.r, headerFill.g, headerFill.b)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetDrawColor(200, 200, 200)
	for i, c := range pdfColumns {
		pdf.CellFormat(pdfWidths[i], rowHeight, c, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func drawTable(pdf *fpdf.Fpdf, t Table, tr func(string) string) {
	_, pageHeight := pdf.GetPageSize()
	drawTableHeader(pdf)

	pdf.SetFont("Helvetica", "", 9)
	for _, e := range t.Rows {
		if pdf.GetY()+rowHeight > pageHeight-pageMargin {
			pdf.AddPage()
			drawTableHeader(pdf)
			pdf.SetFont("Helvetica", "", 9)
		}
		c := cashOutColor
		if e.Kind == core.CashIn {
			c = cashInColor
		}
		pdf.SetTextColor(c.r, c.g, c.b)

		in, out := split(e)
		cells := []string{t.When(e, dateLayout), e.Details, e.Category, e.PaymentMode, in, out, e.Balance.Fixed()}
		for i, v := range cells {
			pdf.CellFormat(pdfWidths[i], rowHeight, fit(pdf, tr(v), pdfWidths[i]-2), "1", 0, pdfAligns[i], false, 0, "")
		}
		pdf.Ln(-1)
	}

	if pdf.GetY()+rowHeight > pageHeight-pageMargin {
		pdf.AddPage()
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(textColor.r, textColor.g, textColor.b)
	for i, v := range t.totalsRecord() {
		pdf.CellFormat(pdfWidths[i], rowHeight, v, "1", 0, pdfAligns[i], false, 0, "")
	}
	pdf.Ln(-1)
}

// registerAttachments decodes every attachment and registers the drawable
// images with pdf. Attachments that cannot be drawn keep an empty image name.
func registerAttachments(pdf *fpdf.Fpdf, rows []core.BalancedExpense) []pdfAttachment {
	var out []pdfAttachment
	for _, e := range rows {
		for _, a := range e.Attachments {
			att := pdfAttachment{Attachment: a, details: e.Details}
			if strings.HasPrefix(a.Type, "image/") {
				name := fmt.Sprintf("attachment-%d", len(out))
				if w, h, ok := registerImage(pdf, name, a.Data); ok {
					att.image, att.width, att.height = name, w, h
				}
			}
			out = append(out, att)
		}
	}
	return out
}

func registerImage(pdf *fpdf.Fpdf, name, dataURL string) (width, height float64, ok bool) {
	raw, err := decodeDataURL(dataURL)
	if err != nil {
		return 0, 0, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, false
	}
	imageType := map[string]string{"png": "PNG", "jpeg": "JPG", "gif": "GIF"}[format]
	if imageType == "" {
		return 0, 0, false
	}
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(raw))
	if !pdf.Ok() {
		// fpdf rejects some valid images (interlaced PNG, 16-bit depth).
		pdf.ClearError()
		return 0, 0, false
	}
	return float64(cfg.Width), float64(cfg.Height), true
}

func drawAttachments(pdf *fpdf.Fpdf, attachments []pdfAttachment, tr func(string) string) {
	pdf.AddPage()
	pdf.SetTextColor(textColor.r, textColor.g, textColor.b)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(pageMargin, 20, "Attachments")
	pdf.SetY(28)
	pdf.SetFont("Helvetica", "", 11)
	for _, a := range attachments {
		line := fmt.Sprintf("%s (%s)", a.Name, a.details)
		if a.image == "" {
			line = "Could not load image: " + line
			if !strings.HasPrefix(a.Type, "image/") {
				line = fmt.Sprintf("Not an image: %s (%s)", a.Name, a.details)
			}
		}
		pdf.CellFormat(0, rowHeight, tr(line), "", 1, "L", false, 0, "")
	}

	pageWidth, pageHeight := pdf.GetPageSize()
	availW := pageWidth - 2*pageMargin
	availH := pageHeight - 2*pageMargin - 10
	for _, a := range attachments {
		if a.image == "" {
			continue
		}
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 10)
		pdf.Text(pageMargin, pageMargin, tr(fmt.Sprintf("%s (%s)", a.Name, a.details)))

		w := availW
		h := w * a.height / a.width
		if h > availH {
			h = availH
			w = h * a.width / a.height
		}
		x := (pageWidth - w) / 2
		y := pageMargin + 5 + (availH-h)/2
		pdf.ImageOptions(a.image, x, y, w, h, false, fpdf.ImageOptions{}, 0, "")
	}
}

// decodeDataURL returns the payload of a base64 data URL. A bare base64
// string is accepted as well.
func decodeDataURL(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, errors.New("unsupported data URL")
		}
		s = payload
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// fit shortens s with an ellipsis until it fits in width. s is already in
// the single-byte font encoding, so cutting bytes is safe.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
