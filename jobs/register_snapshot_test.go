package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/salesregister/internal/jobs"
	"github.com/odyssey-erp/salesregister/internal/salesregister"
	"github.com/odyssey-erp/salesregister/internal/salesregister/export"
)

type fakeRegisters struct {
	requests []salesregister.Request
	err      error
}

func (f *fakeRegisters) Execute(_ context.Context, req salesregister.Request) (salesregister.Report, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return salesregister.Report{}, f.err
	}
	return salesregister.Report{
		Columns: salesregister.BuildColumns(nil, nil),
		Rows:    []salesregister.Row{},
		Message: salesregister.NoInvoicesMessage,
	}, nil
}

type fakeCompanies struct {
	names []string
	day   time.Time
}

func (f *fakeCompanies) Companies(_ context.Context, day time.Time) ([]string, error) {
	f.day = day
	return f.names, nil
}

type fakeRenderer struct {
	titles []string
}

func (f *fakeRenderer) Render(_ context.Context, _ salesregister.Report, meta export.Meta) ([]byte, error) {
	f.titles = append(f.titles, meta.Title)
	return []byte("%PDF"), nil
}

func newSnapshotTask(t *testing.T, payload RegisterSnapshotPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskRegisterSnapshot, data)
}

func TestRegisterSnapshotDefaultsToYesterdayForAllCompanies(t *testing.T) {
	dir := t.TempDir()
	registers := &fakeRegisters{}
	companies := &fakeCompanies{names: []string{"Acme Retail", "Beta & Co"}}
	renderer := &fakeRenderer{}
	job := NewRegisterSnapshotJob(registers, companies, renderer, dir, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2024, 1, 16, 0, 10, 0, 0, time.UTC) })

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskRegisterSnapshot, nil)))

	assert.Equal(t, "2024-01-15", companies.day.Format("2006-01-02"))
	require.Len(t, registers.requests, 2)
	f := registers.requests[0].Filters
	assert.Equal(t, "Acme Retail", f.Company)
	require.NotNil(t, f.FromDate)
	require.NotNil(t, f.ToDate)
	assert.True(t, f.FromDate.Equal(*f.ToDate))
	assert.Equal(t, []string{"Daily Sales Register for Acme Retail", "Daily Sales Register for Beta & Co"}, renderer.titles)

	assert.FileExists(t, filepath.Join(dir, "2024-01-15", "acme-retail.pdf"))
	raw, err := os.ReadFile(filepath.Join(dir, "2024-01-15", "beta-co.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw))
}

func TestRegisterSnapshotRetryOverwritesFiles(t *testing.T) {
	dir := t.TempDir()
	companies := &fakeCompanies{names: []string{"Acme Retail", "Beta & Co"}}
	job := NewRegisterSnapshotJob(&fakeRegisters{}, companies, &fakeRenderer{}, dir, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task := newSnapshotTask(t, RegisterSnapshotPayload{Date: "2024-01-15"})

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))

	entries, err := os.ReadDir(filepath.Join(dir, "2024-01-15"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"acme-retail.pdf", "beta-co.pdf"}, names)
}

func TestRegisterSnapshotSingleCompany(t *testing.T) {
	registers := &fakeRegisters{}
	companies := &fakeCompanies{names: []string{"ignored"}}
	job := NewRegisterSnapshotJob(registers, companies, &fakeRenderer{}, t.TempDir(), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), newSnapshotTask(t, RegisterSnapshotPayload{Company: "Acme", Date: "2024-02-29"}))
	require.NoError(t, err)
	require.Len(t, registers.requests, 1)
	assert.Equal(t, "Acme", registers.requests[0].Filters.Company)
	assert.Equal(t, "2024-02-29", registers.requests[0].Filters.FromDate.Format("2006-01-02"))
	assert.True(t, companies.day.IsZero())
}

func TestRegisterSnapshotRejectsBadDate(t *testing.T) {
	job := NewRegisterSnapshotJob(&fakeRegisters{}, &fakeCompanies{}, &fakeRenderer{}, t.TempDir(), nil, nil)
	err := job.Handle(context.Background(), newSnapshotTask(t, RegisterSnapshotPayload{Date: "15/01/2024"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRegisterSnapshotPropagatesBuildError(t *testing.T) {
	registers := &fakeRegisters{err: errors.New("db down")}
	job := NewRegisterSnapshotJob(registers, &fakeCompanies{names: []string{"Acme"}}, &fakeRenderer{}, t.TempDir(), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), newSnapshotTask(t, RegisterSnapshotPayload{Date: "2024-01-15"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "acme-retail", slug("Acme Retail"))
	assert.Equal(t, "beta-co", slug("Beta & Co."))
	assert.Equal(t, "company", slug("***"))
}

func TestCacheBumpJob(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := salesregister.NewCache(client, time.Minute)

	before, err := cache.Version(context.Background())
	require.NoError(t, err)
	job := &CacheBumpJob{Cache: cache}
	require.NoError(t, job.Handle(context.Background(), NewRegisterCacheBumpTask()))
	after, err := cache.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestPayloadDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
	day, err := RegisterSnapshotPayload{}.Day(now)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", day.Format("2006-01-02"))
}
