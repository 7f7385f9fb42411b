package salesregister

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueries struct {
	modes    []string
	invoices []Invoice
	payments []PaymentEntry
	err      error

	mu           sync.Mutex
	scopes       []ModeScope
	extraQueries [][]string
	paymentNames [][]string
}

func (s *stubQueries) ModesOfPayment(_ context.Context, scope ModeScope, _ Filters) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = append(s.scopes, scope)
	return s.modes, s.err
}

func (s *stubQueries) Invoices(_ context.Context, _ Filters, extra []string) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraQueries = append(s.extraQueries, extra)
	return s.invoices, nil
}

func (s *stubQueries) Payments(_ context.Context, names []string) ([]PaymentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentNames = append(s.paymentNames, names)
	return s.payments, nil
}

type stubStore struct {
	q     *stubQueries
	mu    sync.Mutex
	calls int
}

func (s *stubStore) Snapshot(ctx context.Context, fn func(context.Context, Queries) error) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return fn(ctx, s.q)
}

func (s *stubStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordedBuild struct {
	outcome string
}

type stubRecorder struct {
	mu     sync.Mutex
	builds []recordedBuild
	hits   []bool
}

func (r *stubRecorder) ObserveBuild(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, recordedBuild{outcome: outcome})
}

func (r *stubRecorder) ObserveCache(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, hit)
}

func sampleQueries() *stubQueries {
	return &stubQueries{
		modes: []string{"Card", "Cash"},
		invoices: []Invoice{
			{Name: "INV-002", CustomerName: "Beta", Owner: "b@example.com", Total: dec("50"), NetTotal: dec("50"), TotalTaxesAndCharges: dec("5"), DiscountAmount: dec("0"), GrandTotal: dec("55"), ChangeAmount: dec("0")},
			{Name: "INV-001", CustomerName: "Acme", Owner: "a@example.com", Total: dec("100"), NetTotal: dec("100"), TotalTaxesAndCharges: dec("10"), DiscountAmount: dec("0"), GrandTotal: dec("110"), ChangeAmount: dec("0")},
		},
		payments: []PaymentEntry{
			{Parent: "INV-001", Idx: 1, ModeOfPayment: "Cash", Amount: dec("110")},
			{Parent: "INV-002", Idx: 1, ModeOfPayment: "Card", Amount: dec("55")},
		},
	}
}

func TestExecuteBuildsRegister(t *testing.T) {
	q := sampleQueries()
	store := &stubStore{q: q}
	rec := &stubRecorder{}
	svc := NewService(store, nil, nil, Options{})
	svc.WithRecorder(rec)

	report, err := svc.Execute(context.Background(), Request{})
	require.NoError(t, err)

	require.Len(t, report.Columns, 2+4+2+2)
	assert.Equal(t, []string{"Card", "Cash"}, report.ModesOfPayment)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "INV-002", report.Rows[0].Invoice)
	assert.True(t, dec("55").Equal(report.Rows[0].ModeAmounts[0]))
	assert.True(t, report.Rows[0].ModeAmounts[1].IsZero())
	assert.True(t, dec("110").Equal(report.Rows[1].ModeAmounts[1]))
	assert.Empty(t, report.Message)

	require.Len(t, q.paymentNames, 1)
	assert.Equal(t, []string{"INV-002", "INV-001"}, q.paymentNames[0])
	assert.Equal(t, []ModeScope{ModeScopeGlobal}, q.scopes)

	require.Len(t, rec.builds, 1)
	assert.Equal(t, "success", rec.builds[0].outcome)
	assert.Empty(t, rec.hits, "cache observations require an enabled cache")
}

func TestExecuteEmptyResultKeepsColumns(t *testing.T) {
	q := &stubQueries{modes: []string{"Cash"}}
	rec := &stubRecorder{}
	svc := NewService(&stubStore{q: q}, nil, nil, Options{})
	svc.WithRecorder(rec)

	report, err := svc.Execute(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, report.Columns, 2+4+1+2)
	assert.NotNil(t, report.Rows)
	assert.Empty(t, report.Rows)
	assert.Equal(t, NoInvoicesMessage, report.Message)
	assert.True(t, report.IsEmpty())
	require.Len(t, rec.builds, 1)
	assert.Equal(t, "empty", rec.builds[0].outcome)
}

func TestExecuteNoModesYieldsEmptySlice(t *testing.T) {
	q := &stubQueries{}
	svc := NewService(&stubStore{q: q}, nil, nil, Options{})

	report, err := svc.Execute(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotNil(t, report.ModesOfPayment)
	assert.Len(t, report.Columns, 8)
}

func TestExecuteFilteredScope(t *testing.T) {
	q := sampleQueries()
	svc := NewService(&stubStore{q: q}, nil, nil, Options{ModeScope: ModeScopeFiltered, DuplicatePolicy: DuplicateSum})
	assert.Equal(t, ModeScopeFiltered, svc.Options().ModeScope)
	assert.Equal(t, DuplicateSum, svc.Options().DuplicatePolicy)

	_, err := svc.Execute(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []ModeScope{ModeScopeFiltered}, q.scopes)
}

func TestOptionsDefaults(t *testing.T) {
	svc := NewService(nil, nil, nil, Options{ModeScope: "bogus", DuplicatePolicy: "bogus"})
	assert.Equal(t, ModeScopeGlobal, svc.Options().ModeScope)
	assert.Equal(t, DuplicateFirst, svc.Options().DuplicatePolicy)
}

func TestExecuteExtraColumnsMismatch(t *testing.T) {
	store := &stubStore{q: sampleQueries()}
	svc := NewService(store, nil, nil, Options{})

	_, err := svc.Execute(context.Background(), Request{
		ExtraColumns:      []Column{{Label: "Posting Date", FieldType: "Date", Width: 90}},
		ExtraQueryColumns: []string{"si.posting_date", "si.company"},
	})
	require.ErrorIs(t, err, ErrExtraColumnsMismatch)
	assert.Zero(t, store.Calls())
}

func TestExecuteInvalidColumn(t *testing.T) {
	svc := NewService(&stubStore{q: sampleQueries()}, nil, nil, Options{})
	_, err := svc.Execute(context.Background(), Request{ExtraColumns: []Column{{Label: ""}}})
	require.ErrorIs(t, err, ErrInvalidColumn)
}

func TestExecuteExtraQueryColumnsAreLabelled(t *testing.T) {
	q := sampleQueries()
	q.invoices[0].Extra = []any{"Acme Ltd"}
	q.invoices[1].Extra = []any{"Acme Ltd"}
	svc := NewService(&stubStore{q: q}, nil, nil, Options{})

	report, err := svc.Execute(context.Background(), Request{ExtraQueryColumns: []string{"si.company"}})
	require.NoError(t, err)
	require.Len(t, report.Columns, 2+1+4+2+2)
	assert.Equal(t, "si.company", report.Columns[2].Label)
	assert.Equal(t, []string{"si.company"}, q.extraQueries[0])
	assert.Equal(t, "Acme Ltd", report.Rows[0].Values()[2])
}

func TestExecuteExtraColumnsWithoutValuesArePadded(t *testing.T) {
	svc := NewService(&stubStore{q: sampleQueries()}, nil, nil, Options{})

	report, err := svc.Execute(context.Background(), Request{
		ExtraColumns: []Column{{Label: "Note", FieldType: "Data", Width: 80}},
	})
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	values := report.Rows[0].Values()
	assert.Len(t, values, len(report.Columns))
	assert.Nil(t, values[2])
}

func TestExecuteStoreError(t *testing.T) {
	q := sampleQueries()
	q.err = errors.New("boom")
	rec := &stubRecorder{}
	svc := NewService(&stubStore{q: q}, nil, nil, Options{})
	svc.WithRecorder(rec)

	_, err := svc.Execute(context.Background(), Request{})
	require.Error(t, err)
	require.Len(t, rec.builds, 1)
	assert.Equal(t, "error", rec.builds[0].outcome)
}

func TestExecuteServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &stubStore{q: sampleQueries()}
	rec := &stubRecorder{}
	cache := NewCache(client, time.Minute)
	svc := NewService(store, cache, nil, Options{})
	svc.WithRecorder(rec)
	assert.Same(t, cache, svc.Cache())

	req := Request{Filters: ParseFilters(map[string]string{"company": "Acme"})}
	first, err := svc.Execute(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Calls())
	require.Len(t, second.Rows, len(first.Rows))
	assert.True(t, first.Rows[0].GrandTotal.Equal(second.Rows[0].GrandTotal))
	assert.Equal(t, []bool{false, true}, rec.hits)

	require.NoError(t, cache.Bump(context.Background()))
	_, err = svc.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Calls())
}

type blockingStore struct {
	q       *stubQueries
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) Snapshot(ctx context.Context, fn func(context.Context, Queries) error) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn(ctx, s.q)
}

func TestExecuteSharedBuildSurvivesLeaderCancel(t *testing.T) {
	store := &blockingStore{q: sampleQueries(), started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, nil, nil, Options{})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Execute(leaderCtx, Request{})
		leaderErr <- err
	}()
	<-store.started

	type result struct {
		report Report
		err    error
	}
	follower := make(chan result, 1)
	go func() {
		report, err := svc.Execute(context.Background(), Request{})
		follower <- result{report: report, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(store.release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Len(t, res.report.Rows, 2)
}

func TestOptionsDefaultBuildTimeout(t *testing.T) {
	assert.Equal(t, defaultBuildTimeout, NewService(nil, nil, nil, Options{}).Options().BuildTimeout)
	assert.Equal(t, 5*time.Second, NewService(nil, nil, nil, Options{BuildTimeout: 5 * time.Second}).Options().BuildTimeout)
}
