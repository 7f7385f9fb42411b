package export

import (
	"encoding/csv"
	"io"

	"github.com/odyssey-erp/salesregister/internal/salesregister"
)

// WriteCSV serialises the register with a header line, one line per row and
// a totals line when rows exist.
func WriteCSV(w io.Writer, report salesregister.Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(Headers(report.Columns)); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := writer.Write(formatRecord(row.Values())); err != nil {
			return err
		}
	}
	if !report.IsEmpty() {
		if err := writer.Write(formatRecord(TotalsRow(report))); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatRecord(values []any) []string {
	record := make([]string, len(values))
	for i, v := range values {
		record[i] = FormatValue(v)
	}
	return record
}
