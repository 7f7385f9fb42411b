package salesregister

import "github.com/shopspring/decimal"

// GroupPayments indexes payment entries by their parent invoice, keeping the
// order in which they were returned.
func GroupPayments(entries []PaymentEntry) map[string][]PaymentEntry {
	grouped := make(map[string][]PaymentEntry)
	for _, entry := range entries {
		grouped[entry.Parent] = append(grouped[entry.Parent], entry)
	}
	return grouped
}

// ModeAmount resolves the amount paid through mode on one invoice. Missing
// modes yield zero.
func ModeAmount(entries []PaymentEntry, mode string, policy DuplicatePolicy) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		if entry.ModeOfPayment != mode {
			continue
		}
		if policy != DuplicateSum {
			return entry.Amount
		}
		total = total.Add(entry.Amount)
	}
	return total
}

// AssembleRows joins invoices with their payment entries into register rows,
// preserving invoice order.
func AssembleRows(invoices []Invoice, modes []string, payments map[string][]PaymentEntry, policy DuplicatePolicy) []Row {
	rows := make([]Row, 0, len(invoices))
	for _, inv := range invoices {
		entries := payments[inv.Name]
		amounts := make([]decimal.Decimal, len(modes))
		for i, mode := range modes {
			amounts[i] = ModeAmount(entries, mode, policy)
		}
		rows = append(rows, Row{
			Invoice:        inv.Name,
			CustomerName:   inv.CustomerName,
			Extra:          inv.Extra,
			NetTotal:       inv.Total,
			TotalTaxes:     inv.ReportedTaxes(),
			DiscountAmount: inv.DiscountAmount,
			GrandTotal:     inv.GrandTotal,
			ModeAmounts:    amounts,
			ChangeAmount:   inv.ChangeAmount,
			Owner:          inv.Owner,
		})
	}
	return rows
}
