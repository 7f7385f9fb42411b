package salesregister

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleRowsSingleCashPayment(t *testing.T) {
	invoices := []Invoice{{
		Name:                 "INV-001",
		CustomerName:         "Acme",
		Owner:                "cashier@example.com",
		Total:                dec("100"),
		NetTotal:             dec("100"),
		TotalTaxesAndCharges: dec("10"),
		DiscountAmount:       decimal.Zero,
		GrandTotal:           dec("110"),
		ChangeAmount:         decimal.Zero,
	}}
	payments := GroupPayments([]PaymentEntry{{Parent: "INV-001", Idx: 1, ModeOfPayment: "Cash", Amount: dec("110")}})

	rows := AssembleRows(invoices, []string{"Cash", "Card"}, payments, DuplicateFirst)
	require.Len(t, rows, 1)

	want := []string{"INV-001", "Acme", "100", "10", "0", "110", "110", "0", "0", "cashier@example.com"}
	got := rows[0].Values()
	require.Len(t, got, len(want))
	for i, v := range got {
		switch val := v.(type) {
		case decimal.Decimal:
			assert.True(t, dec(want[i]).Equal(val), "column %d: want %s got %s", i, want[i], val)
		default:
			assert.Equal(t, want[i], val, "column %d", i)
		}
	}
}

func TestModeAmountMissingModeIsZero(t *testing.T) {
	entries := []PaymentEntry{{ModeOfPayment: "Cash", Amount: dec("5")}}
	assert.True(t, ModeAmount(entries, "Card", DuplicateFirst).IsZero())
	assert.True(t, ModeAmount(nil, "Cash", DuplicateSum).IsZero())
}

func TestModeAmountDuplicates(t *testing.T) {
	entries := []PaymentEntry{
		{Parent: "INV-001", Idx: 1, ModeOfPayment: "Cash", Amount: dec("60")},
		{Parent: "INV-001", Idx: 2, ModeOfPayment: "Card", Amount: dec("10")},
		{Parent: "INV-001", Idx: 3, ModeOfPayment: "Cash", Amount: dec("40")},
	}
	assert.True(t, dec("60").Equal(ModeAmount(entries, "Cash", DuplicateFirst)))
	assert.True(t, dec("100").Equal(ModeAmount(entries, "Cash", DuplicateSum)))
}

func TestAssembleRowsPreservesInvoiceOrder(t *testing.T) {
	invoices := []Invoice{{Name: "INV-003"}, {Name: "INV-002"}, {Name: "INV-001"}}
	rows := AssembleRows(invoices, nil, map[string][]PaymentEntry{}, DuplicateFirst)
	require.Len(t, rows, 3)
	assert.Equal(t, "INV-003", rows[0].Invoice)
	assert.Equal(t, "INV-001", rows[2].Invoice)
	assert.Empty(t, rows[0].ModeAmounts)
}

func TestGroupPaymentsKeepsOrder(t *testing.T) {
	grouped := GroupPayments([]PaymentEntry{
		{Parent: "A", Idx: 1, ModeOfPayment: "Cash"},
		{Parent: "B", Idx: 1, ModeOfPayment: "Card"},
		{Parent: "A", Idx: 2, ModeOfPayment: "Card"},
	})
	require.Len(t, grouped["A"], 2)
	assert.Equal(t, int32(1), grouped["A"][0].Idx)
	assert.Equal(t, int32(2), grouped["A"][1].Idx)
	assert.Len(t, grouped["B"], 1)
}

func TestBuildColumnsShape(t *testing.T) {
	extra := []Column{{Label: "Posting Date", FieldType: "Date", Width: 90}}
	cols := BuildColumns(extra, []string{"Card", "Cash", "Voucher"})
	require.Len(t, cols, 2+1+4+3+2)
	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = c.Label
	}
	assert.Equal(t, []string{
		"Invoice", "Customer Name", "Posting Date",
		"Net Total", "Total Tax", "Discount Amount", "Grand Total",
		"Card", "Cash", "Voucher",
		"Change Amount", "Owner",
	}, labels)
	for _, c := range cols[7:10] {
		assert.True(t, c.IsCurrency())
	}
}
