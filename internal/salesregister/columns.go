package salesregister

// Leading, amount and trailing column sets of the register.
var (
	leadingColumns = []Column{
		{Label: "Invoice", FieldType: "Link", Options: "Sales Invoice", Width: 100},
		{Label: "Customer Name", Width: 120},
	}
	amountColumns = []Column{
		{Label: "Net Total", FieldType: "Currency", Options: "currency", Width: 100},
		{Label: "Total Tax", FieldType: "Currency", Options: "currency", Width: 100},
		{Label: "Discount Amount", FieldType: "Currency", Options: "currency", Width: 100},
		{Label: "Grand Total", FieldType: "Currency", Options: "currency", Width: 100},
	}
	trailingColumns = []Column{
		{Label: "Change Amount", FieldType: "Currency", Options: "Currency", Width: 100},
		{Label: "Owner", Width: 150},
	}
)

const modeColumnWidth = 110

// BuildColumns assembles the register schema: leading columns, the extra
// display columns, amount columns, one currency column per mode of payment
// and the trailing columns.
func BuildColumns(extra []Column, modes []string) []Column {
	columns := make([]Column, 0, len(leadingColumns)+len(extra)+len(amountColumns)+len(modes)+len(trailingColumns))
	columns = append(columns, leadingColumns...)
	columns = append(columns, extra...)
	columns = append(columns, amountColumns...)
	for _, mode := range modes {
		columns = append(columns, Column{Label: mode, FieldType: "Currency", Options: "currency", Width: modeColumnWidth})
	}
	columns = append(columns, trailingColumns...)
	return columns
}
