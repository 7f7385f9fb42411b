package salesregister

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// Store opens a consistent read view over the invoice tables.
type Store interface {
	Snapshot(ctx context.Context, fn func(context.Context, Queries) error) error
}

// Request is the entry contract of the register.
type Request struct {
	Filters Filters `json:"filters"`
	// ExtraColumns are display columns inserted after the customer name.
	ExtraColumns []Column `json:"extra_columns,omitempty" validate:"dive"`
	// ExtraQueryColumns are SQL select expressions over the header table
	// (alias "si") whose values fill ExtraColumns. Callers own their safety.
	ExtraQueryColumns []string `json:"extra_query_columns,omitempty"`
}

func (r Request) fingerprint() string {
	var b strings.Builder
	b.WriteString(r.Filters.Key())
	for _, col := range r.ExtraColumns {
		b.WriteString("|c:")
		b.WriteString(col.String())
	}
	for _, expr := range r.ExtraQueryColumns {
		b.WriteString("|q:")
		b.WriteString(expr)
	}
	return b.String()
}

// Options tune how the register resolves the open behaviours of the report.
type Options struct {
	ModeScope       ModeScope
	DuplicatePolicy DuplicatePolicy
	// BuildTimeout bounds a shared build, which outlives the caller that
	// started it.
	BuildTimeout time.Duration
}

const defaultBuildTimeout = time.Minute

func (o Options) withDefaults() Options {
	if !o.ModeScope.Valid() {
		o.ModeScope = ModeScopeGlobal
	}
	if !o.DuplicatePolicy.Valid() {
		o.DuplicatePolicy = DuplicateFirst
	}
	if o.BuildTimeout <= 0 {
		o.BuildTimeout = defaultBuildTimeout
	}
	return o
}

// Recorder receives build and cache observations.
type Recorder interface {
	ObserveBuild(outcome string, elapsed time.Duration)
	ObserveCache(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBuild(string, time.Duration) {}
func (nopRecorder) ObserveCache(bool) {}

// Service builds the daily sales register.
type Service struct {
	store    Store
	cache    *Cache
	logger   *slog.Logger
	opts     Options
	validate *validator.Validate
	recorder Recorder
	group    singleflight.Group
	now      func() time.Time
}

// NewService wires a Store with an optional Cache.
func NewService(store Store, cache *Cache, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		cache:    cache,
		logger:   logger.With(slog.String("report", "daily_sales_register")),
		opts:     opts.withDefaults(),
		validate: validator.New(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// WithRecorder installs the metrics recorder.
func (s *Service) WithRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// Options reports the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// Cache exposes the cache helper, which may be nil.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Execute builds the register for req. Concurrent identical requests share a
// single build, which keeps running when the caller that started it gives up.
func (s *Service) Execute(ctx context.Context, req Request) (Report, error) {
	if err := s.validateRequest(req); err != nil {
		return Report{}, err
	}
	key, err := s.cache.BuildKey(ctx, req.fingerprint())
	if err != nil {
		s.logger.Warn("build cache key", slog.Any("error", err))
		key = req.fingerprint()
	}
	ch := s.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.BuildTimeout)
		defer cancel()
		report, hit, err := s.cache.FetchReport(ctx, key, func(ctx context.Context) (Report, error) {
			return s.build(ctx, req)
		})
		if err != nil {
			return Report{}, err
		}
		if s.cache.enabled() {
			s.recorder.ObserveCache(hit)
		}
		if hit {
			s.logger.Debug("register served from cache", slog.String("key", key))
		}
		return report, nil
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (s *Service) validateRequest(req Request) error {
	if len(req.ExtraColumns) > 0 && len(req.ExtraQueryColumns) > 0 && len(req.ExtraColumns) != len(req.ExtraQueryColumns) {
		return ErrExtraColumnsMismatch
	}
	if err := s.validate.Struct(req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidColumn, vErrs[0].Namespace())
		}
		return fmt.Errorf("%w: %v", ErrInvalidColumn, err)
	}
	return nil
}

func (s *Service) build(ctx context.Context, req Request) (Report, error) {
	start := s.now()
	var (
		modes    []string
		invoices []Invoice
		payments []PaymentEntry
	)
	err := s.store.Snapshot(ctx, func(ctx context.Context, q Queries) error {
		var err error
		modes, err = q.ModesOfPayment(ctx, s.opts.ModeScope, req.Filters)
		if err != nil {
			return err
		}
		invoices, err = q.Invoices(ctx, req.Filters, req.ExtraQueryColumns)
		if err != nil {
			return err
		}
		names := make([]string, len(invoices))
		for i, inv := range invoices {
			names[i] = inv.Name
		}
		payments, err = q.Payments(ctx, names)
		return err
	})
	if err != nil {
		s.recorder.ObserveBuild("error", s.now().Sub(start))
		s.logger.Error("register build failed", slog.Any("error", err))
		return Report{}, err
	}
	if modes == nil {
		modes = []string{}
	}

	report := Report{
		Columns:        BuildColumns(extraColumns(req), modes),
		ModesOfPayment: modes,
		GeneratedAt:    start.UTC(),
	}
	if len(invoices) == 0 {
		report.Rows = []Row{}
		report.Message = NoInvoicesMessage
		s.recorder.ObserveBuild("empty", s.now().Sub(start))
		s.logger.Info("no invoices found", slog.String("filters", req.Filters.Key()))
		return report, nil
	}
	for i := range invoices {
		if len(req.ExtraColumns) > 0 && len(invoices[i].Extra) == 0 {
			invoices[i].Extra = make([]any, len(req.ExtraColumns))
		}
	}
	report.Rows = AssembleRows(invoices, modes, GroupPayments(payments), s.opts.DuplicatePolicy)
	s.recorder.ObserveBuild("success", s.now().Sub(start))
	s.logger.Info("register built",
		slog.Int("invoices", len(invoices)),
		slog.Int("modes", len(modes)),
		slog.Duration("duration", s.now().Sub(start)),
	)
	return report, nil
}

// extraColumns returns the display columns for the extra values, labelling
// bare query expressions with the expression itself.
func extraColumns(req Request) []Column {
	if len(req.ExtraColumns) > 0 || len(req.ExtraQueryColumns) == 0 {
		return req.ExtraColumns
	}
	cols := make([]Column, len(req.ExtraQueryColumns))
	for i, expr := range req.ExtraQueryColumns {
		cols[i] = Column{Label: expr, Width: 120}
	}
	return cols
}
