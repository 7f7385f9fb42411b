package salesregister

import (
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const dateLayout = "2006-01-02"

// Filter keys accepted by ParseFilters.
const (
	FilterCompany       = "company"
	FilterCustomer      = "customer"
	FilterFromDate      = "from_date"
	FilterToDate        = "to_date"
	FilterOwner         = "owner"
	FilterModeOfPayment = "mode_of_payment"
	FilterCostCenter    = "cost_center"
	FilterWarehouse     = "warehouse"
)

// FilterKeys lists every recognised filter in clause order.
var FilterKeys = []string{
	FilterCompany,
	FilterCustomer,
	FilterFromDate,
	FilterToDate,
	FilterOwner,
	FilterModeOfPayment,
	FilterCostCenter,
	FilterWarehouse,
}

// Filters narrows the register. Zero values mean "no constraint".
type Filters struct {
	Company       string     `json:"company,omitempty"`
	Customer      string     `json:"customer,omitempty"`
	FromDate      *time.Time `json:"from_date,omitempty"`
	ToDate        *time.Time `json:"to_date,omitempty"`
	Owner         string     `json:"owner,omitempty"`
	ModeOfPayment string     `json:"mode_of_payment,omitempty"`
	CostCenter    string     `json:"cost_center,omitempty"`
	Warehouse     string     `json:"warehouse,omitempty"`
	// Malformed holds keys whose value could not be interpreted. Any entry
	// makes the conditions match nothing.
	Malformed []string `json:"malformed,omitempty"`
}

// ParseFilters reads a loose key/value mapping. Unknown keys are ignored and
// blank values are treated as absent.
func ParseFilters(values map[string]string) Filters {
	var f Filters
	for _, key := range FilterKeys {
		raw := strings.TrimSpace(values[key])
		if raw == "" {
			continue
		}
		switch key {
		case FilterCompany:
			f.Company = raw
		case FilterCustomer:
			f.Customer = raw
		case FilterOwner:
			f.Owner = raw
		case FilterModeOfPayment:
			f.ModeOfPayment = raw
		case FilterCostCenter:
			f.CostCenter = raw
		case FilterWarehouse:
			f.Warehouse = raw
		case FilterFromDate, FilterToDate:
			day, err := time.Parse(dateLayout, raw)
			if err != nil {
				f.Malformed = append(f.Malformed, key)
				continue
			}
			if key == FilterFromDate {
				f.FromDate = &day
			} else {
				f.ToDate = &day
			}
		}
	}
	return f
}

// ForDay restricts the filters to a single posting date.
func (f Filters) ForDay(day time.Time) Filters {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	f.FromDate = &d
	f.ToDate = &d
	return f
}

// Key renders a stable representation used for cache keys.
func (f Filters) Key() string {
	parts := []string{
		f.Company,
		f.Customer,
		formatDate(f.FromDate),
		formatDate(f.ToDate),
		f.Owner,
		f.ModeOfPayment,
		f.CostCenter,
		f.Warehouse,
	}
	if len(f.Malformed) > 0 {
		malformed := append([]string(nil), f.Malformed...)
		sort.Strings(malformed)
		parts = append(parts, "!"+strings.Join(malformed, ","))
	}
	return strings.Join(parts, "|")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// Conditions translates the filters into the predicate list applied to the
// invoice header table aliased "si". Values are bound as placeholders.
func Conditions(f Filters) sq.And {
	conds := sq.And{}
	if len(f.Malformed) > 0 {
		return append(conds, sq.Expr("1 = 0"))
	}
	if f.Company != "" {
		conds = append(conds, sq.Eq{"si.company": f.Company})
	}
	if f.Customer != "" {
		conds = append(conds, sq.Eq{"si.customer": f.Customer})
	}
	if f.FromDate != nil {
		conds = append(conds, sq.GtOrEq{"si.posting_date": *f.FromDate})
	}
	if f.ToDate != nil {
		conds = append(conds, sq.LtOrEq{"si.posting_date": *f.ToDate})
	}
	if f.Owner != "" {
		conds = append(conds, sq.Eq{"si.owner": f.Owner})
	}
	if f.ModeOfPayment != "" {
		conds = append(conds, sq.Expr(`EXISTS (SELECT 1 FROM sales_invoice_payments sip
			WHERE sip.parent = si.name AND COALESCE(sip.mode_of_payment, '') = ?)`, f.ModeOfPayment))
	}
	if f.CostCenter != "" {
		conds = append(conds, sq.Expr(`EXISTS (SELECT 1 FROM sales_invoice_items sii
			WHERE sii.parent = si.name AND COALESCE(sii.cost_center, '') = ?)`, f.CostCenter))
	}
	if f.Warehouse != "" {
		conds = append(conds, sq.Expr(`EXISTS (SELECT 1 FROM sales_invoice_items sii
			WHERE sii.parent = si.name AND COALESCE(sii.warehouse, '') = ?)`, f.Warehouse))
	}
	return conds
}
