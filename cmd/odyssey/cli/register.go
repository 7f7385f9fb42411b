package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/internal/salesregister/export"
)

// Output formats of the show command.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// RegisterBuilder builds registers.
type RegisterBuilder interface {
	Execute(ctx context.Context, req salesregister.Request) (salesregister.Report, error)
}

// RegisterCLI prints registers on the terminal.
type RegisterCLI struct {
	service RegisterBuilder
}

// NewRegisterCLI constructs the register helpers.
func NewRegisterCLI(service RegisterBuilder) *RegisterCLI {
	return &RegisterCLI{service: service}
}

// ShowOptions defines available flags for the show command.
type ShowOptions struct {
	Filters map[string]string
	// Query holds raw select expressions over the invoice header (alias si).
	Query   []string
	Format  string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ShowCommand builds the register and prints it. It returns the process exit
// code: 0 with rows, 3 when nothing matched and 1 on failure.
func (c *RegisterCLI) ShowCommand(ctx context.Context, opts ShowOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatTable
	}
	if format != FormatTable && format != FormatJSON && format != FormatCSV {
		_, _ = fmt.Fprintf(opts.Stderr, "register show: unknown format %q (expected table, json or csv)\n", opts.Format)
		return 1
	}

	req := salesregister.Request{
		Filters:           salesregister.ParseFilters(opts.Filters),
		ExtraQueryColumns: opts.Query,
	}
	if len(req.Filters.Malformed) > 0 {
		_, _ = fmt.Fprintf(opts.Stderr, "register show: ignoring malformed %s\n", strings.Join(req.Filters.Malformed, ", "))
	}
	report, err := c.service.Execute(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "register show: %v\n", err)
		return 1
	}

	switch format {
	case FormatJSON:
		err = json.NewEncoder(opts.Stdout).Encode(report)
	case FormatCSV:
		err = export.WriteCSV(opts.Stdout, report)
	default:
		err = renderTable(opts.Stdout, report)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "register show: write output: %v\n", err)
		return 1
	}
	if report.IsEmpty() {
		return 3
	}
	return 0
}

func renderTable(w io.Writer, report salesregister.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	writeLine := func(values []string) {
		_, _ = fmt.Fprintln(tw, strings.Join(values, "\t")+"\t")
	}
	writeLine(export.Headers(report.Columns))
	for _, row := range report.Rows {
		writeLine(formatValues(row.Values()))
	}
	if !report.IsEmpty() {
		writeLine(formatValues(export.TotalsRow(report)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if report.Message != "" {
		_, err := fmt.Fprintln(w, report.Message)
		return err
	}
	return nil
}

func formatValues(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = export.FormatValue(v)
	}
	return out
}
