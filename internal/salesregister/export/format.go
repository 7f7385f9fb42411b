package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/salesregister/internal/salesregister"
)

// Meta describes the context printed alongside an exported register.
type Meta struct {
	Title   string
	Filters salesregister.Filters
}

// DefaultTitle is used when Meta.Title is empty.
const DefaultTitle = "Daily Sales Register"

func (m Meta) title() string {
	if m.Title == "" {
		return DefaultTitle
	}
	return m.Title
}

// FormatValue renders a cell value for text exports.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.StringFixed(2)
	case *decimal.Decimal:
		if val == nil {
			return ""
		}
		return val.StringFixed(2)
	case time.Time:
		return val.Format("2006-01-02")
	default:
		return fmt.Sprint(val)
	}
}

// Headers returns the column labels of the report.
func Headers(columns []salesregister.Column) []string {
	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = col.Label
	}
	return headers
}

// TotalsRow lays the report totals out against the columns. Non-currency
// columns are blank except the first, which carries the label.
func TotalsRow(report salesregister.Report) []any {
	totals := report.Totals()
	row := make([]any, len(report.Columns))
	if len(row) == 0 {
		return row
	}
	row[0] = "Total"
	extra := len(report.Columns) - 8 - len(report.ModesOfPayment)
	if extra < 0 {
		return row
	}
	idx := 2 + extra
	for _, v := range []decimal.Decimal{totals.NetTotal, totals.TotalTaxes, totals.DiscountAmount, totals.GrandTotal} {
		row[idx] = v
		idx++
	}
	for _, v := range totals.ModeAmounts {
		row[idx] = v
		idx++
	}
	row[idx] = totals.ChangeAmount
	return row
}

// FilterSummary renders the active filters as label/value pairs in a stable order.
func FilterSummary(f salesregister.Filters) [][2]string {
	var out [][2]string
	add := func(label, value string) {
		if value != "" {
			out = append(out, [2]string{label, value})
		}
	}
	add("Company", f.Company)
	add("Customer", f.Customer)
	if f.FromDate != nil {
		add("From Date", f.FromDate.Format("2006-01-02"))
	}
	if f.ToDate != nil {
		add("To Date", f.ToDate.Format("2006-01-02"))
	}
	add("Owner", f.Owner)
	add("Mode of Payment", f.ModeOfPayment)
	add("Cost Center", f.CostCenter)
	add("Warehouse", f.Warehouse)
	return out
}
