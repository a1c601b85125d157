package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"ledger/internal/core"
)

func goaTrip() core.Ledger {
	return core.Ledger{
		ID:        "l1",
		Name:      "Goa Trip",
		CreatedAt: "2025-01-10T08:00:00.000Z",
		Expenses: []core.Expense{
			{ID: "e2", Kind: core.CashOut, Timestamp: "2025-01-11T19:45:00.000Z", Details: "Dinner", Category: "Food", PaymentMode: "Card", Amount: core.MustAmount("1200")},
			{ID: "e1", Kind: core.CashIn, Timestamp: "2025-01-10T09:00:00.000Z", Details: "Budget", Category: "Transfer", PaymentMode: "Cash", Amount: core.MustAmount("5000")},
		},
	}
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestTableRecords(t *testing.T) {
	records := NewTable(goaTrip(), nil).Records()

	want := [][]string{
		Columns,
		{"2025-01-11 19:45", "Dinner", "Food", "Card", "", "1200.00", "3800.00"},
		{"2025-01-10 09:00", "Budget", "Transfer", "Cash", "5000.00", "", "5000.00"},
		{"", "", "", "", "", "", ""},
		{"", "TOTALS", "", "", "5000.00", "1200.00", "3800.00"},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if records[i][j] != want[i][j] {
				t.Errorf("records[%d][%d] = %q, want %q", i, j, records[i][j], want[i][j])
			}
		}
	}
}

func TestTableLocationAndBadTimestamps(t *testing.T) {
	l := goaTrip()
	l.Expenses[1].Timestamp = "yesterday"
	loc := time.FixedZone("IST", 5*3600+1800)

	records := NewTable(l, loc).Records()

	if records[1][0] != "2025-01-12 01:15" {
		t.Errorf("time not shown in location: %q", records[1][0])
	}
	if records[2][0] != "yesterday" {
		t.Errorf("unparseable timestamp should pass through, got %q", records[2][0])
	}
}

func TestTableEmptyLedger(t *testing.T) {
	records := NewTable(core.Ledger{Name: "Empty"}, nil).Records()
	if len(records) != 3 {
		t.Fatalf("empty ledger should still have header, spacer and totals, got %d records", len(records))
	}
	if records[2][6] != "0.00" {
		t.Errorf("empty balance = %q, want 0.00", records[2][6])
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, NewTable(goaTrip(), nil)); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	raw := buf.Bytes()
	if !bytes.HasPrefix(raw, utf8BOM) {
		t.Fatal("missing UTF-8 BOM")
	}
	rows, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(rows) != 5 || rows[0][0] != "Date & Time" || rows[4][1] != "TOTALS" || rows[4][6] != "3800.00" {
		t.Errorf("unexpected csv: %v", rows)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, NewTable(goaTrip(), nil)); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Fatalf("sheets = %v, want [%s]", sheets, SheetName)
	}

	cell := func(axis string) string {
		t.Helper()
		v, err := f.GetCellValue(SheetName, axis, excelize.Options{RawCellValue: true})
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", axis, err)
		}
		return v
	}
	number := func(axis string) float64 {
		t.Helper()
		v, err := strconv.ParseFloat(cell(axis), 64)
		if err != nil {
			t.Fatalf("cell %s is not numeric: %q", axis, cell(axis))
		}
		return v
	}

	if cell("A1") != "Date & Time" || cell("G1") != "Balance" {
		t.Errorf("header = %q .. %q", cell("A1"), cell("G1"))
	}
	if cell("B2") != "Dinner" || number("F2") != 1200 || number("G2") != 3800 {
		t.Errorf("first row wrong: %q %v %v", cell("B2"), cell("F2"), cell("G2"))
	}
	if cell("E2") != "" {
		t.Errorf("cash-out row should have empty Cash In, got %q", cell("E2"))
	}
	if cell("A4") != "" || cell("B4") != "" {
		t.Errorf("row 4 should be the spacer")
	}
	if cell("B5") != "TOTALS" || number("E5") != 5000 || number("F5") != 1200 || number("G5") != 3800 {
		t.Errorf("totals row wrong")
	}
}

func TestBuildPDF(t *testing.T) {
	exportedAt := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no attachments", func(t *testing.T) {
		pdf, err := buildPDF(NewTable(goaTrip(), nil), exportedAt)
		if err != nil {
			t.Fatalf("buildPDF() error = %v", err)
		}
		if pdf.PageNo() != 1 {
			t.Errorf("pages = %d, want 1", pdf.PageNo())
		}
	})

	t.Run("image and broken attachments", func(t *testing.T) {
		l := goaTrip()
		l.Expenses[0].Attachments = []core.Attachment{
			{Name: "bill.png", Type: "image/png", Data: pngDataURL(t)},
			{Name: "broken.png", Type: "image/png", Data: "data:image/png;base64,bm90IGFuIGltYWdl"},
			{Name: "notes.txt", Type: "text/plain", Data: "data:text/plain;base64,aGk="},
		}

		pdf, err := buildPDF(NewTable(l, nil), exportedAt)
		if err != nil {
			t.Fatalf("buildPDF() error = %v", err)
		}
		// Table, attachment list, one page for the only drawable image.
		if pdf.PageNo() != 3 {
			t.Errorf("pages = %d, want 3", pdf.PageNo())
		}
	})

	t.Run("long ledger breaks pages", func(t *testing.T) {
		l := core.Ledger{Name: "Long"}
		for i := 0; i < 80; i++ {
			l.Expenses = append(l.Expenses, core.Expense{
				ID: strconv.Itoa(i), Kind: core.CashOut, Timestamp: "2025-01-10T09:00:00.000Z",
				Details: "A rather long description that will not fit in its column", Category: "Food",
				PaymentMode: "Cash", Amount: core.MustAmount("1"),
			})
		}
		pdf, err := buildPDF(NewTable(l, nil), exportedAt)
		if err != nil {
			t.Fatalf("buildPDF() error = %v", err)
		}
		if pdf.PageNo() < 2 {
			t.Errorf("pages = %d, want at least 2", pdf.PageNo())
		}
	})
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, NewTable(goaTrip(), nil), time.Now()); err != nil {
		t.Fatalf("WritePDF() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output is not a PDF")
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"data:text/plain;base64,aGk=", "hi", false},
		{"aGk=", "hi", false},
		{"data:text/plain,hi", "", true},
		{"data:image/png;base64,!!!", "", true},
	}
	for _, tt := range tests {
		got, err := decodeDataURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("decodeDataURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("decodeDataURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormats(t *testing.T) {
	for _, in := range []string{"csv", ".XLSX", " pdf "} {
		if _, err := ParseFormat(in); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", in, err)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(docx) error = %v, want ErrUnknownFormat", err)
	}
	if FormatPDF.ContentType() != "application/pdf" {
		t.Errorf("ContentType() = %q", FormatPDF.ContentType())
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{"Goa Trip", FormatXLSX, "Goa_Trip_expenses.xlsx"},
		{"Two  spaces\ttab", FormatPDF, "Two__spaces_tab_expenses.pdf"},
		{"Solo", FormatCSV, "Solo_expenses.csv"},
	}
	for _, tt := range tests {
		if got := FileName(tt.name, tt.format); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRenderer(t *testing.T) {
	r := NewRenderer(nil)
	r.Now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }

	for _, f := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		b, err := r.Render(context.Background(), f, goaTrip())
		if err != nil {
			t.Fatalf("Render(%s) error = %v", f, err)
		}
		if len(b) == 0 {
			t.Errorf("Render(%s) returned nothing", f)
		}
	}

	if _, err := r.Render(context.Background(), "docx", goaTrip()); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Render(docx) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, FormatCSV, goaTrip()); !errors.Is(err, context.Canceled) {
		t.Errorf("Render() on cancelled ctx error = %v", err)
	}
}
