package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/salesregister/internal/salesregister"
)

const (
	sheetName = "Register"
	// excelize built-in number format "#,##0.00".
	currencyNumFmt = 4
)

// WriteXLSX renders the register into a single-sheet workbook.
func WriteXLSX(w io.Writer, report salesregister.Report, meta Meta) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F2F2F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "999999", Style: 1}},
	})
	if err != nil {
		return err
	}
	currencyStyle, err := f.NewStyle(&excelize.Style{NumFmt: currencyNumFmt})
	if err != nil {
		return err
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		NumFmt: currencyNumFmt,
		Border: []excelize.Border{{Type: "top", Color: "999999", Style: 1}},
	})
	if err != nil {
		return err
	}

	line := 1
	if err := f.SetCellValue(sheetName, "A1", meta.title()); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", titleStyle); err != nil {
		return err
	}
	line++
	for _, pair := range FilterSummary(meta.Filters) {
		if err := f.SetSheetRow(sheetName, cell(1, line), &[]any{pair[0], pair[1]}); err != nil {
			return err
		}
		line++
	}
	line++

	headerLine := line
	headers := make([]any, len(report.Columns))
	for i, col := range report.Columns {
		headers[i] = col.Label
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, name, name, columnWidth(col)); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheetName, cell(1, headerLine), &headers); err != nil {
		return err
	}
	if len(report.Columns) > 0 {
		if err := f.SetCellStyle(sheetName, cell(1, headerLine), cell(len(report.Columns), headerLine), headerStyle); err != nil {
			return err
		}
	}
	line++

	if report.IsEmpty() {
		if report.Message != "" {
			if err := f.SetCellValue(sheetName, cell(1, line), report.Message); err != nil {
				return err
			}
		}
	} else {
		for _, row := range report.Rows {
			if err := writeRow(f, line, row.Values(), report.Columns, currencyStyle); err != nil {
				return err
			}
			line++
		}
		if err := writeRow(f, line, TotalsRow(report), report.Columns, totalStyle); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell(1, line), cell(1, line), totalStyle); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerLine,
		TopLeftCell: cell(1, headerLine+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.Write(w)
}

func writeRow(f *excelize.File, line int, values []any, columns []salesregister.Column, currencyStyle int) error {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = cellValue(v)
	}
	if err := f.SetSheetRow(sheetName, cell(1, line), &cells); err != nil {
		return err
	}
	for i, col := range columns {
		if !col.IsCurrency() || i >= len(values) {
			continue
		}
		ref := cell(i+1, line)
		if err := f.SetCellStyle(sheetName, ref, ref, currencyStyle); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64()
	case nil:
		return ""
	default:
		return val
	}
}

func columnWidth(col salesregister.Column) float64 {
	if col.Width <= 0 {
		return 14
	}
	// Widths are expressed in pixels; a spreadsheet unit is roughly seven.
	return float64(col.Width) / 7
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		panic(fmt.Sprintf("export: invalid cell %d,%d: %v", col, row, err))
	}
	return name
}
