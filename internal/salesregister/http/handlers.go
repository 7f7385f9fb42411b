package registerhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/salesregister/internal/platform/httpx"
	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/internal/salesregister/export"
)

const defaultRequestTimeout = 30 * time.Second

// RegisterService builds registers.
type RegisterService interface {
	Execute(ctx context.Context, req salesregister.Request) (salesregister.Report, error)
}

// CacheBumper invalidates cached registers.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// PDFRenderer renders a register to PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, register salesregister.Report, meta export.Meta) ([]byte, error)
}

// extraField is a header column callers may request through the extra parameter.
type extraField struct {
	column salesregister.Column
	expr   string
}

var extraFields = map[string]extraField{
	"posting_date": {
		column: salesregister.Column{Label: "Posting Date", FieldType: "Date", Width: 90},
		expr:   "si.posting_date",
	},
	"customer": {
		column: salesregister.Column{Label: "Customer", FieldType: "Link", Options: "Customer", Width: 120},
		expr:   "si.customer",
	},
	"company": {
		column: salesregister.Column{Label: "Company", FieldType: "Link", Options: "Company", Width: 120},
		expr:   "si.company",
	},
}

// Handler serves the register over HTTP.
type Handler struct {
	logger  *slog.Logger
	service RegisterService
	cache   CacheBumper
	pdf     PDFRenderer
	csvPool sync.Pool
	timeout time.Duration
	now     func() time.Time
}

// NewHandler constructs the register HTTP handler. cache and pdf are optional.
func NewHandler(logger *slog.Logger, service RegisterService, cache CacheBumper, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:  logger,
		service: service,
		cache:   cache,
		pdf:     pdf,
		timeout: defaultRequestTimeout,
		now:     time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// WithTimeout overrides the per-request build deadline.
func (h *Handler) WithTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

type reportResponse struct {
	Columns        []salesregister.Column `json:"columns"`
	ModesOfPayment []string               `json:"modes_of_payment"`
	Rows           [][]any                `json:"rows"`
	Totals         *salesregister.Totals  `json:"totals,omitempty"`
	Message        string                 `json:"message,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

func newReportResponse(report salesregister.Report) reportResponse {
	resp := reportResponse{
		Columns:        report.Columns,
		ModesOfPayment: report.ModesOfPayment,
		Rows:           make([][]any, 0, len(report.Rows)),
		Message:        report.Message,
		GeneratedAt:    report.GeneratedAt,
	}
	for _, row := range report.Rows {
		resp.Rows = append(resp.Rows, row.Values())
	}
	if !report.IsEmpty() {
		totals := report.Totals()
		resp.Totals = &totals
	}
	return resp
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, _, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, newReportResponse(report))
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	report, req, ok := h.load(w, r)
	if !ok {
		return
	}
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteCSV(buf, report); err != nil {
		h.handleServerError(w, "write register csv", err)
		return
	}
	if err := httpx.Attachment(w, "text/csv; charset=utf-8", h.filename(req.Filters, "csv"), buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	report, req, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, report, export.Meta{Filters: req.Filters}); err != nil {
		h.handleServerError(w, "write register xlsx", err)
		return
	}
	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if err := httpx.Attachment(w, contentType, h.filename(req.Filters, "xlsx"), buf.Bytes()); err != nil {
		h.logError("stream xlsx", err)
	}
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		h.handleServerError(w, "pdf exporter", errors.New("pdf exporter not configured"))
		return
	}
	report, req, ok := h.load(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	pdf, err := h.pdf.Render(ctx, report, export.Meta{Filters: req.Filters})
	if err != nil {
		h.logError("render register pdf", err)
		httpx.RespondError(w, fmt.Errorf("%w: pdf renderer", httpx.ErrUnavailable))
		return
	}
	if err := httpx.Attachment(w, "application/pdf", h.filename(req.Filters, "pdf"), pdf); err != nil {
		h.logError("stream pdf", err)
	}
}

func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	if err := h.cache.Bump(r.Context()); err != nil {
		h.handleServerError(w, "bump register cache", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "bumped"})
}

// load parses the request and builds the register, writing the error
// response itself when it fails.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (salesregister.Report, salesregister.Request, bool) {
	req, err := parseRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return salesregister.Report{}, req, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	report, err := h.service.Execute(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, salesregister.ErrExtraColumnsMismatch), errors.Is(err, salesregister.ErrInvalidColumn):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		case errors.Is(err, context.DeadlineExceeded):
			h.logError("build register", err)
			httpx.RespondError(w, err)
		default:
			h.handleServerError(w, "build register", err)
		}
		return salesregister.Report{}, req, false
	}
	return report, req, true
}

func parseRequest(r *http.Request) (salesregister.Request, error) {
	query := r.URL.Query()
	values := make(map[string]string, len(salesregister.FilterKeys))
	for _, key := range salesregister.FilterKeys {
		values[key] = query.Get(key)
	}
	req := salesregister.Request{Filters: salesregister.ParseFilters(values)}

	for _, raw := range query["extra"] {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			field, ok := extraFields[name]
			if !ok {
				return req, fmt.Errorf("%w: unknown extra column %q", httpx.ErrValidation, name)
			}
			req.ExtraColumns = append(req.ExtraColumns, field.column)
			req.ExtraQueryColumns = append(req.ExtraQueryColumns, field.expr)
		}
	}
	return req, nil
}

func (h *Handler) filename(f salesregister.Filters, ext string) string {
	day := h.now().UTC()
	if f.FromDate != nil {
		day = *f.FromDate
	}
	name := "daily-sales-register-" + day.Format("2006-01-02")
	if f.ToDate != nil && (f.FromDate == nil || !f.ToDate.Equal(*f.FromDate)) {
		name += "_" + f.ToDate.Format("2006-01-02")
	}
	return name + "." + ext
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	httpx.RespondError(w, err)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}
