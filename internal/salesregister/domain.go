package salesregister

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrExtraColumnsMismatch is returned when extra display columns and extra
	// query expressions are both supplied with different lengths.
	ErrExtraColumnsMismatch = errors.New("salesregister: extra columns and query columns differ in length")
	// ErrInvalidColumn flags an extra column descriptor that failed validation.
	ErrInvalidColumn = errors.New("salesregister: invalid column descriptor")
)

// NoInvoicesMessage is reported when the filters match nothing.
const NoInvoicesMessage = "No invoices found."

// ApplyDiscountOnGrandTotal marks invoices whose discount was taken off the grand total.
const ApplyDiscountOnGrandTotal = "Grand Total"

// ModeScope controls which payments are inspected when discovering the
// payment-mode columns.
type ModeScope string

const (
	// ModeScopeGlobal discovers modes across every recorded payment.
	ModeScopeGlobal ModeScope = "global"
	// ModeScopeFiltered only considers payments of invoices matching the filters.
	ModeScopeFiltered ModeScope = "filtered"
)

// Valid reports whether the scope is known.
func (s ModeScope) Valid() bool {
	return s == ModeScopeGlobal || s == ModeScopeFiltered
}

// DuplicatePolicy resolves several payment entries of the same mode on one invoice.
type DuplicatePolicy string

const (
	// DuplicateFirst keeps the first entry (lowest idx) and ignores the rest.
	DuplicateFirst DuplicatePolicy = "first"
	// DuplicateSum adds every entry of the mode together.
	DuplicateSum DuplicatePolicy = "sum"
)

// Valid reports whether the policy is known.
func (p DuplicatePolicy) Valid() bool {
	return p == DuplicateFirst || p == DuplicateSum
}

// Column describes a report column in the host UI format.
type Column struct {
	Label     string `json:"label" validate:"required,max=140"`
	FieldType string `json:"fieldtype" validate:"omitempty,oneof=Link Currency Data Date Float Int"`
	Options   string `json:"options,omitempty" validate:"max=140"`
	Width     int    `json:"width" validate:"gte=0,lte=1000"`
}

// String renders the column as Label:FieldType/Options:Width.
func (c Column) String() string {
	var b strings.Builder
	b.WriteString(c.Label)
	b.WriteByte(':')
	b.WriteString(c.FieldType)
	if c.Options != "" {
		b.WriteByte('/')
		b.WriteString(c.Options)
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(c.Width))
	return b.String()
}

// IsCurrency reports whether the column carries money.
func (c Column) IsCurrency() bool {
	return c.FieldType == "Currency"
}

// Invoice is the read projection of a submitted POS sales invoice.
type Invoice struct {
	Name                 string          `json:"name"`
	Customer             string          `json:"customer"`
	CustomerName         string          `json:"customer_name"`
	Owner                string          `json:"owner"`
	PostingDate          time.Time       `json:"posting_date"`
	Total                decimal.Decimal `json:"total"`
	NetTotal             decimal.Decimal `json:"net_total"`
	TotalTaxesAndCharges decimal.Decimal `json:"total_taxes_and_charges"`
	DiscountAmount       decimal.Decimal `json:"discount_amount"`
	ApplyDiscountOn      string          `json:"apply_discount_on"`
	GrandTotal           decimal.Decimal `json:"grand_total"`
	ChangeAmount         decimal.Decimal `json:"change_amount"`
	Extra                []any           `json:"extra,omitempty"`
}

// ReportedTaxes returns the tax-and-charges figure shown on the register.
// When the discount was applied on the grand total the part of it not
// already absorbed by the net total is folded back into the taxes.
func (inv Invoice) ReportedTaxes() decimal.Decimal {
	if inv.ApplyDiscountOn != ApplyDiscountOnGrandTotal {
		return inv.TotalTaxesAndCharges
	}
	absorbed := inv.Total.Sub(inv.NetTotal)
	return inv.TotalTaxesAndCharges.Add(inv.DiscountAmount.Sub(absorbed))
}

// PaymentEntry is one mode-of-payment line recorded against an invoice.
type PaymentEntry struct {
	Parent        string          `json:"parent" db:"parent"`
	Idx           int32           `json:"idx" db:"idx"`
	ModeOfPayment string          `json:"mode_of_payment" db:"mode_of_payment"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
}

// Row is one register line. Values renders it positionally against the schema.
type Row struct {
	Invoice        string            `json:"invoice"`
	CustomerName   string            `json:"customer_name"`
	Extra          []any             `json:"extra,omitempty"`
	NetTotal       decimal.Decimal   `json:"net_total"`
	TotalTaxes     decimal.Decimal   `json:"total_taxes"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	GrandTotal     decimal.Decimal   `json:"grand_total"`
	ModeAmounts    []decimal.Decimal `json:"mode_amounts"`
	ChangeAmount   decimal.Decimal   `json:"change_amount"`
	Owner          string            `json:"owner"`
}

// Values returns the row as a tuple aligned with the report columns.
func (r Row) Values() []any {
	values := make([]any, 0, 8+len(r.Extra)+len(r.ModeAmounts))
	values = append(values, r.Invoice, r.CustomerName)
	values = append(values, r.Extra...)
	values = append(values, r.NetTotal, r.TotalTaxes, r.DiscountAmount, r.GrandTotal)
	for _, amount := range r.ModeAmounts {
		values = append(values, amount)
	}
	values = append(values, r.ChangeAmount, r.Owner)
	return values
}

// Report is the outcome of one register invocation.
type Report struct {
	Columns        []Column  `json:"columns"`
	ModesOfPayment []string  `json:"modes_of_payment"`
	Rows           []Row     `json:"rows"`
	Message        string    `json:"message,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Totals holds the column sums shown in the register footer.
type Totals struct {
	NetTotal       decimal.Decimal   `json:"net_total"`
	TotalTaxes     decimal.Decimal   `json:"total_taxes"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	GrandTotal     decimal.Decimal   `json:"grand_total"`
	ModeAmounts    []decimal.Decimal `json:"mode_amounts"`
	ChangeAmount   decimal.Decimal   `json:"change_amount"`
}

// Totals sums every currency column of the report.
func (r Report) Totals() Totals {
	totals := Totals{ModeAmounts: make([]decimal.Decimal, len(r.ModesOfPayment))}
	for i := range totals.ModeAmounts {
		totals.ModeAmounts[i] = decimal.Zero
	}
	for _, row := range r.Rows {
		totals.NetTotal = totals.NetTotal.Add(row.NetTotal)
		totals.TotalTaxes = totals.TotalTaxes.Add(row.TotalTaxes)
		totals.DiscountAmount = totals.DiscountAmount.Add(row.DiscountAmount)
		totals.GrandTotal = totals.GrandTotal.Add(row.GrandTotal)
		totals.ChangeAmount = totals.ChangeAmount.Add(row.ChangeAmount)
		for i, amount := range row.ModeAmounts {
			if i < len(totals.ModeAmounts) {
				totals.ModeAmounts[i] = totals.ModeAmounts[i].Add(amount)
			}
		}
	}
	return totals
}

// IsEmpty reports whether the report carries no rows.
func (r Report) IsEmpty() bool {
	return len(r.Rows) == 0
}
