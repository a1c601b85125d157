package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"ledger/internal/core"
)

// SheetName is the worksheet holding the exported expenses.
const SheetName = "Expenses"

var columnWidths = []float64{18, 32, 16, 12, 12, 12, 14}

// WriteXLSX writes t as a single-sheet workbook. Amounts are numeric cells.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"14B8A6"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}
	totalsStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create totals style: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", "G1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := 2
	for _, e := range t.Rows {
		var in, out any = "", ""
		if e.Kind == core.CashIn {
			in = e.Amount.Float()
		} else {
			out = e.Amount.Float()
		}
		values := []any{t.When(e, dateTimeLayout), e.Details, e.Category, e.PaymentMode, in, out, e.Balance.Float()}
		if err := setRow(f, row, values); err != nil {
			return err
		}
		row++
	}
	if row > 2 {
		if err := f.SetCellStyle(SheetName, "E2", fmt.Sprintf("G%d", row-1), moneyStyle); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}

	// Leave one empty spacer row before the totals.
	row++
	totals := []any{"", totalsLabel, "", "", t.Totals.CashIn.Float(), t.Totals.CashOut.Float(), t.Totals.Net.Float()}
	if err := setRow(f, row, totals); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), totalsStyle); err != nil {
		return fmt.Errorf("style totals: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
