package registerhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/salesregister/internal/platform/httpx"
)

// DefaultExportLimit caps export requests per client and minute.
const DefaultExportLimit = 10

// MountRoutes registers the register endpoints. Exports are rate limited per
// client IP with limit requests a minute.
func (h *Handler) MountRoutes(r chi.Router, limit int) {
	if h == nil {
		return
	}
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	limiter := httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooManyRequests)
		}),
	)

	r.Route("/reports/daily-sales-register", func(r chi.Router) {
		r.Get("/", h.handleReport)
		r.Post("/cache/bump", h.handleBump)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export.csv", h.handleCSV)
			gr.Get("/export.xlsx", h.handleXLSX)
			gr.Get("/export.pdf", h.handlePDF)
		})
	})
}
