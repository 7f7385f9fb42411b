package export

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"path"
	"time"

	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/report"
	"github.com/odyssey-erp/salesregister/web"
)

// HTMLRenderer converts an HTML document into PDF bytes.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string, opts report.RenderOptions) ([]byte, error)
}

// PDFExporter renders registers through an HTML renderer.
type PDFExporter struct {
	Renderer HTMLRenderer
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter(renderer HTMLRenderer) *PDFExporter {
	return &PDFExporter{Renderer: renderer}
}

// Render produces a landscape PDF of the register.
func (p *PDFExporter) Render(ctx context.Context, register salesregister.Report, meta Meta) ([]byte, error) {
	if p == nil || p.Renderer == nil {
		return nil, errors.New("pdf exporter not initialised")
	}
	html, err := RenderHTML(register, meta)
	if err != nil {
		return nil, err
	}
	return p.Renderer.RenderHTML(ctx, html, report.RenderOptions{Landscape: true, Margin: 0.4})
}

const (
	registerTemplatePath   = "templates/register/daily_sales_register.html"
	registerStylesheetPath = "static/register/register.css"
)

var (
	registerTemplate = template.Must(template.New(path.Base(registerTemplatePath)).Funcs(template.FuncMap{
		"value": FormatValue,
		"align": func(col salesregister.Column) string {
			if col.IsCurrency() {
				return "num"
			}
			return "txt"
		},
	}).ParseFS(web.Templates, registerTemplatePath))
	registerStylesheet = mustReadStatic(registerStylesheetPath)
)

func mustReadStatic(name string) template.CSS {
	raw, err := fs.ReadFile(web.Static, name)
	if err != nil {
		panic(err)
	}
	return template.CSS(raw)
}

type pdfView struct {
	Title       string
	Stylesheet  template.CSS
	Filters     [][2]string
	Columns     []salesregister.Column
	Rows        [][]any
	Totals      []any
	Message     string
	GeneratedAt string
}

// RenderHTML lays the register out as a printable HTML table.
func RenderHTML(register salesregister.Report, meta Meta) (string, error) {
	view := pdfView{
		Title:       meta.title(),
		Stylesheet:  registerStylesheet,
		Filters:     FilterSummary(meta.Filters),
		Columns:     register.Columns,
		Rows:        make([][]any, 0, len(register.Rows)),
		Message:     register.Message,
		GeneratedAt: register.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for _, row := range register.Rows {
		view.Rows = append(view.Rows, row.Values())
	}
	if !register.IsEmpty() {
		view.Totals = TotalsRow(register)
	}
	var buf bytes.Buffer
	if err := registerTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
