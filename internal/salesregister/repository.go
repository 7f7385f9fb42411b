package salesregister

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/salesregister/internal/platform/db"
)

// Queries is the read surface used to build one register.
type Queries interface {
	ModesOfPayment(ctx context.Context, scope ModeScope, filters Filters) ([]string, error)
	Invoices(ctx context.Context, filters Filters, extraQueryColumns []string) ([]Invoice, error)
	Payments(ctx context.Context, invoiceNames []string) ([]PaymentEntry, error)
}

// Repository reads the register from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Snapshot runs fn against a read-only repeatable-read transaction so every
// query of one register sees the same data.
func (r *Repository) Snapshot(ctx context.Context, fn func(context.Context, Queries) error) error {
	return db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txQueries{q: tx})
	})
}

// Companies lists the companies that posted POS invoices on the given day.
func (r *Repository) Companies(ctx context.Context, day time.Time) ([]string, error) {
	sqlStr, args, err := companiesQuery(day).ToSql()
	if err != nil {
		return nil, fmt.Errorf("salesregister: build companies query: %w", err)
	}
	var companies []string
	if err := pgxscan.Select(ctx, r.pool, &companies, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("salesregister: companies: %w", err)
	}
	return companies, nil
}

type txQueries struct {
	q pgxscan.Querier
}

func (t txQueries) ModesOfPayment(ctx context.Context, scope ModeScope, filters Filters) ([]string, error) {
	sqlStr, args, err := modesQuery(scope, filters).ToSql()
	if err != nil {
		return nil, fmt.Errorf("salesregister: build modes query: %w", err)
	}
	modes := make([]string, 0)
	if err := pgxscan.Select(ctx, t.q, &modes, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("salesregister: modes of payment: %w", err)
	}
	return modes, nil
}

func (t txQueries) Invoices(ctx context.Context, filters Filters, extraQueryColumns []string) ([]Invoice, error) {
	sqlStr, args, err := invoicesQuery(filters, extraQueryColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("salesregister: build invoices query: %w", err)
	}
	rows, err := t.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("salesregister: invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]Invoice, 0)
	for rows.Next() {
		var inv Invoice
		extra := make([]any, len(extraQueryColumns))
		dest := []any{
			&inv.Name, &inv.Customer, &inv.CustomerName, &inv.Owner, &inv.PostingDate,
			&inv.Total, &inv.NetTotal, &inv.TotalTaxesAndCharges, &inv.DiscountAmount,
			&inv.ApplyDiscountOn, &inv.GrandTotal, &inv.ChangeAmount,
		}
		for i := range extra {
			dest = append(dest, &extra[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("salesregister: scan invoice: %w", err)
		}
		if len(extra) > 0 {
			for i, v := range extra {
				extra[i] = normalizeValue(v)
			}
			inv.Extra = extra
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("salesregister: invoices: %w", err)
	}
	return invoices, nil
}

func (t txQueries) Payments(ctx context.Context, invoiceNames []string) ([]PaymentEntry, error) {
	if len(invoiceNames) == 0 {
		return nil, nil
	}
	sqlStr, args, err := paymentsQuery(invoiceNames).ToSql()
	if err != nil {
		return nil, fmt.Errorf("salesregister: build payments query: %w", err)
	}
	var entries []PaymentEntry
	if err := pgxscan.Select(ctx, t.q, &entries, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("salesregister: payments: %w", err)
	}
	return entries, nil
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// postedPOS restricts the header table to submitted POS invoices.
var postedPOS = sq.And{sq.Eq{"si.docstatus": 1}, sq.Expr("si.is_pos")}

func invoicesQuery(filters Filters, extraQueryColumns []string) sq.SelectBuilder {
	columns := []string{
		"si.name",
		"COALESCE(si.customer, '')",
		"COALESCE(si.customer_name, '')",
		"COALESCE(si.owner, '')",
		"si.posting_date",
		"COALESCE(si.total, 0)",
		"COALESCE(si.net_total, 0)",
		"COALESCE(si.total_taxes_and_charges, 0)",
		"COALESCE(si.discount_amount, 0)",
		"COALESCE(si.apply_discount_on, '')",
		"COALESCE(si.grand_total, 0)",
		"COALESCE(si.change_amount, 0)",
	}
	for i, expr := range extraQueryColumns {
		columns = append(columns, fmt.Sprintf("%s AS extra_%d", expr, i))
	}
	query := psql.Select(columns...).
		From("sales_invoices si").
		Where(postedPOS)
	if conds := Conditions(filters); len(conds) > 0 {
		query = query.Where(conds)
	}
	return query.OrderBy("si.posting_date DESC", "si.name DESC")
}

func modesQuery(scope ModeScope, filters Filters) sq.SelectBuilder {
	// NULL and blank modes fold into one blank column so their amounts stay
	// in the breakdown.
	query := psql.Select("DISTINCT COALESCE(sip.mode_of_payment, '') AS mode_of_payment").
		From("sales_invoice_payments sip")
	if scope == ModeScopeFiltered {
		scoped := sq.Select("si.name").From("sales_invoices si").Where(postedPOS)
		if conds := Conditions(filters); len(conds) > 0 {
			scoped = scoped.Where(conds)
		}
		query = query.Where(sq.Expr("sip.parent IN (?)", scoped))
	}
	return query.OrderBy("mode_of_payment")
}

func paymentsQuery(invoiceNames []string) sq.SelectBuilder {
	return psql.Select(
		"sip.parent",
		"sip.idx",
		"COALESCE(sip.mode_of_payment, '') AS mode_of_payment",
		"COALESCE(sip.amount, 0) AS amount",
	).
		From("sales_invoice_payments sip").
		Where(sq.Expr("sip.parent = ANY(?)", invoiceNames)).
		OrderBy("sip.parent", "sip.idx")
}

func companiesQuery(day time.Time) sq.SelectBuilder {
	return psql.Select("DISTINCT si.company").
		From("sales_invoices si").
		Where(postedPOS).
		Where(sq.Eq{"si.posting_date": day}).
		Where("si.company IS NOT NULL").
		OrderBy("si.company")
}

// normalizeValue converts driver-specific values of extra columns into types
// that survive JSON and the exporters.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		raw, err := val.Value()
		if err != nil {
			return nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return s
		}
		return d
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format(dateLayout)
		}
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return val
	}
}
