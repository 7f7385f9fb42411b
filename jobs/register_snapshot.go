package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/salesregister/internal/jobs"
	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/internal/salesregister/export"
)

const snapshotJobName = "salesregister_snapshot"

// RegisterBuilder builds one register.
type RegisterBuilder interface {
	Execute(ctx context.Context, req salesregister.Request) (salesregister.Report, error)
}

// CompanyLister lists companies with POS activity on a day.
type CompanyLister interface {
	Companies(ctx context.Context, day time.Time) ([]string, error)
}

// SnapshotRenderer turns a register into PDF bytes.
type SnapshotRenderer interface {
	Render(ctx context.Context, register salesregister.Report, meta export.Meta) ([]byte, error)
}

// RegisterSnapshotJob archives the daily sales register of every company as PDF.
type RegisterSnapshotJob struct {
	Registers RegisterBuilder
	Companies CompanyLister
	Renderer  SnapshotRenderer
	Dir       string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewRegisterSnapshotJob wires dependencies for the snapshot handler.
func NewRegisterSnapshotJob(registers RegisterBuilder, companies CompanyLister, renderer SnapshotRenderer, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *RegisterSnapshotJob {
	return &RegisterSnapshotJob{
		Registers: registers,
		Companies: companies,
		Renderer:  renderer,
		Dir:       dir,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the job clock for testing.
func (j *RegisterSnapshotJob) WithClock(fn func() time.Time) {
	if fn != nil {
		j.clock = fn
	}
}

// Handle processes register snapshot tasks.
func (j *RegisterSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registers == nil || j.Renderer == nil {
		return errors.New("register snapshot: handler not configured")
	}
	var payload RegisterSnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("register snapshot payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	day, err := payload.Day(j.now())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(snapshotJobName)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("date", day.Format(payloadDateLayout)))

	companies, err := j.companies(ctx, payload.Company, day)
	if err != nil {
		resultErr = err
		logger.Error("load snapshot companies", slog.Any("error", err))
		return resultErr
	}
	if len(companies) == 0 {
		logger.Info("no companies with POS invoices")
		return resultErr
	}

	written := 0
	for _, company := range companies {
		path, err := j.snapshot(ctx, company, day)
		if err != nil {
			resultErr = err
			logger.Error("snapshot company", slog.String("company", company), slog.Any("error", err))
			return resultErr
		}
		logger.Info("register snapshot written", slog.String("company", company), slog.String("path", path))
		written++
	}
	logger.Info("register snapshots completed", slog.Int("companies", written))
	return resultErr
}

func (j *RegisterSnapshotJob) companies(ctx context.Context, company string, day time.Time) ([]string, error) {
	if company != "" {
		return []string{company}, nil
	}
	if j.Companies == nil {
		return nil, errors.New("register snapshot: company lister not configured")
	}
	return j.Companies.Companies(ctx, day)
}

func (j *RegisterSnapshotJob) snapshot(ctx context.Context, company string, day time.Time) (string, error) {
	filters := salesregister.Filters{Company: company}.ForDay(day)
	register, err := j.Registers.Execute(ctx, salesregister.Request{Filters: filters})
	if err != nil {
		return "", fmt.Errorf("build register: %w", err)
	}
	j.metrics().AddSnapshot(company, register.IsEmpty())

	pdf, err := j.Renderer.Render(ctx, register, export.Meta{
		Title:   fmt.Sprintf("%s for %s", export.DefaultTitle, company),
		Filters: filters,
	})
	if err != nil {
		return "", fmt.Errorf("render register: %w", err)
	}

	dir := filepath.Join(j.baseDir(), day.Format(payloadDateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, slug(company)+".pdf")
	if err := writeFileAtomic(path, pdf); err != nil {
		return "", err
	}
	return path, nil
}

// writeFileAtomic replaces path with data through a uniquely named temporary
// file in the same directory, so retried runs overwrite instead of
// accumulating copies and readers never see a partial PDF.
func writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (j *RegisterSnapshotJob) baseDir() string {
	if strings.TrimSpace(j.Dir) == "" {
		return filepath.Join(os.TempDir(), "salesregister")
	}
	return j.Dir
}

func (j *RegisterSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *RegisterSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RegisterSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// slug reduces a company name to a filesystem friendly token.
func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "company"
	}
	return out
}

// CacheBumpJob invalidates cached registers on behalf of writers that cannot
// reach Redis directly.
type CacheBumpJob struct {
	Cache  *salesregister.Cache
	Logger *slog.Logger
}

// Handle processes cache bump tasks.
func (j *CacheBumpJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return nil
	}
	if err := j.Cache.Bump(ctx); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("register cache bumped")
	}
	return nil
}
