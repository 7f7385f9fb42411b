package salesregister

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestReportedTaxes(t *testing.T) {
	cases := []struct {
		name string
		inv  Invoice
		want string
	}{
		{
			name: "net total discount leaves taxes untouched",
			inv:  Invoice{Total: dec("100"), NetTotal: dec("90"), TotalTaxesAndCharges: dec("9"), DiscountAmount: dec("10"), ApplyDiscountOn: "Net Total"},
			want: "9",
		},
		{
			name: "grand total discount folds unabsorbed part into taxes",
			inv:  Invoice{Total: dec("100"), NetTotal: dec("95"), TotalTaxesAndCharges: dec("9.5"), DiscountAmount: dec("10"), ApplyDiscountOn: ApplyDiscountOnGrandTotal},
			want: "14.5",
		},
		{
			name: "grand total discount fully absorbed",
			inv:  Invoice{Total: dec("100"), NetTotal: dec("90"), TotalTaxesAndCharges: dec("9"), DiscountAmount: dec("10"), ApplyDiscountOn: ApplyDiscountOnGrandTotal},
			want: "9",
		},
		{
			name: "empty apply_discount_on",
			inv:  Invoice{Total: dec("50"), NetTotal: dec("50"), TotalTaxesAndCharges: dec("5")},
			want: "5",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.inv.ReportedTaxes()
			assert.True(t, dec(tc.want).Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestColumnString(t *testing.T) {
	assert.Equal(t, "Invoice:Link/Sales Invoice:100", leadingColumns[0].String())
	assert.Equal(t, "Customer Name::120", leadingColumns[1].String())
	assert.Equal(t, "Cash:Currency/currency:110", BuildColumns(nil, []string{"Cash"})[6].String())

	cols := BuildColumns(nil, []string{"Cash"})
	assert.Equal(t, "Net Total:Currency/currency:100", cols[2].String())
	assert.Equal(t, "Change Amount:Currency/Currency:100", cols[7].String())
	assert.Equal(t, "Owner::150", cols[8].String())
}

func TestReportTotals(t *testing.T) {
	report := Report{
		ModesOfPayment: []string{"Cash", "Card"},
		Rows: []Row{
			{NetTotal: dec("100"), TotalTaxes: dec("10"), DiscountAmount: dec("0"), GrandTotal: dec("110"), ModeAmounts: []decimal.Decimal{dec("120"), dec("0")}, ChangeAmount: dec("10")},
			{NetTotal: dec("50"), TotalTaxes: dec("5"), DiscountAmount: dec("2"), GrandTotal: dec("53"), ModeAmounts: []decimal.Decimal{dec("0"), dec("53")}, ChangeAmount: dec("0")},
		},
	}
	totals := report.Totals()
	assert.True(t, dec("150").Equal(totals.NetTotal))
	assert.True(t, dec("15").Equal(totals.TotalTaxes))
	assert.True(t, dec("2").Equal(totals.DiscountAmount))
	assert.True(t, dec("163").Equal(totals.GrandTotal))
	assert.True(t, dec("10").Equal(totals.ChangeAmount))
	require.Len(t, totals.ModeAmounts, 2)
	assert.True(t, dec("120").Equal(totals.ModeAmounts[0]))
	assert.True(t, dec("53").Equal(totals.ModeAmounts[1]))
}

func TestRowValuesPlacesExtraAfterCustomer(t *testing.T) {
	row := Row{
		Invoice:      "INV-001",
		CustomerName: "Acme",
		Extra:        []any{"2024-01-15", "Acme Corp"},
		ModeAmounts:  []decimal.Decimal{dec("1")},
		Owner:        "cashier",
	}
	values := row.Values()
	require.Len(t, values, 11)
	assert.Equal(t, []any{"INV-001", "Acme", "2024-01-15", "Acme Corp"}, values[:4])
	assert.Equal(t, "cashier", values[10])
}

func TestColumnValidation(t *testing.T) {
	svc := NewService(nil, nil, nil, Options{})
	err := svc.validateRequest(Request{ExtraColumns: []Column{{Label: "", Width: 10}}})
	require.ErrorIs(t, err, ErrInvalidColumn)

	err = svc.validateRequest(Request{ExtraColumns: []Column{{Label: "Posting Date", FieldType: "Datetime"}}})
	require.ErrorIs(t, err, ErrInvalidColumn)

	require.NoError(t, svc.validateRequest(Request{ExtraColumns: []Column{{Label: "Posting Date", FieldType: "Date", Width: 90}}}))
}
