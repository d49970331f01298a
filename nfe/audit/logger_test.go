package audit_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/audit/memory"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "11222333000181"

type failingStore struct {
	mu    sync.Mutex
	calls int
	panic bool
}

func (f *failingStore) Append(context.Context, audit.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic {
		panic("disk on fire")
	}
	return errors.New("store unavailable")
}

func (f *failingStore) List(context.Context, string, audit.Filter, int, int) ([]audit.Record, int, error) {
	return nil, 0, errors.New("store unavailable")
}

func (f *failingStore) Aggregate(context.Context, string, time.Time) ([]audit.Aggregate, error) {
	return nil, errors.New("store unavailable")
}

func record(op audit.Operation, outcome audit.Outcome, at time.Time) audit.Record {
	return audit.Record{
		Operation:     op,
		IssuerID:      issuer,
		AccessKey:     "35240311222333000181550010000001231123456788",
		Request:       "<req/>",
		Response:      "<res/>",
		StatusCode:    "100",
		StatusMessage: "Autorizado o uso da NF-e",
		LatencyMs:     120,
		Timestamp:     at,
		Outcome:       outcome,
	}
}

func TestRecord_FillsIDAndTimestamp(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2024, 3, 15, 13, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	l := audit.NewLogger(store, audit.WithClock(func() time.Time { return now }))

	l.Record(context.Background(), record(audit.OpSubmit, audit.OutcomeSuccess, time.Time{}))

	all := store.All()
	require.Len(t, all, 1)
	assert.NotEqual(t, uuid.Nil, all[0].ID)
	assert.Equal(t, now.UTC(), all[0].Timestamp)
	assert.Equal(t, time.UTC, all[0].Timestamp.Location())
}

func TestRecord_TruncatesPayloads(t *testing.T) {
	store := memory.NewStore()
	l := audit.NewLogger(store)

	rec := record(audit.OpSubmit, audit.OutcomeSuccess, time.Now())
	rec.Request = strings.Repeat("a", 5000)
	rec.Response = strings.Repeat("ç", 1500)
	l.Record(context.Background(), rec)

	all := store.All()
	require.Len(t, all, 1)
	assert.Len(t, all[0].Request, audit.PayloadLimit)
	assert.Equal(t, audit.PayloadLimit, len([]rune(all[0].Response)))
}

func TestRecord_StoreFailureIsSwallowed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := audit.NewMetrics(reg)
	store := &failingStore{}
	l := audit.NewLogger(store, audit.WithMetrics(m))

	assert.NotPanics(t, func() {
		l.Record(context.Background(), record(audit.OpQuery, audit.OutcomeError, time.Now()))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
}

func TestRecord_StorePanicIsSwallowed(t *testing.T) {
	m := audit.NewMetrics(nil)
	l := audit.NewLogger(&failingStore{panic: true}, audit.WithMetrics(m))

	assert.NotPanics(t, func() {
		l.Record(context.Background(), record(audit.OpQuery, audit.OutcomeError, time.Now()))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
}

func TestRecord_BreakerDropsWhileOpen(t *testing.T) {
	m := audit.NewMetrics(nil)
	store := &failingStore{}
	l := audit.NewLogger(store,
		audit.WithMetrics(m),
		audit.WithCircuitBreaker(audit.NewCircuitBreaker(2, time.Hour)),
	)

	for i := 0; i < 5; i++ {
		l.Record(context.Background(), record(audit.OpSubmit, audit.OutcomeError, time.Now()))
	}
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))
}

func TestRecord_CancelledContextStillWrites(t *testing.T) {
	store := memory.NewStore()
	l := audit.NewLogger(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Record(ctx, record(audit.OpCancel, audit.OutcomeSuccess, time.Now()))

	assert.Len(t, store.All(), 1)
}

func TestRecord_Concurrent(t *testing.T) {
	store := memory.NewStore()
	l := audit.NewLogger(store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(context.Background(), record(audit.OpSubmit, audit.OutcomeSuccess, time.Now()))
		}()
	}
	wg.Wait()
	assert.Len(t, store.All(), 50)
}

func TestQuery_Pagination(t *testing.T) {
	store := memory.NewStore()
	l := audit.NewLogger(store)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 45; i++ {
		l.Record(context.Background(), record(audit.OpSubmit, audit.OutcomeSuccess, base.Add(time.Duration(i)*time.Minute)))
	}

	page, err := l.Query(context.Background(), issuer, audit.Filter{}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 45, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Records, audit.DefaultPageSize)
	assert.True(t, page.Records[0].Timestamp.After(page.Records[1].Timestamp), "newest first")

	page, err = l.Query(context.Background(), issuer, audit.Filter{}, 3, 20)
	require.NoError(t, err)
	assert.Len(t, page.Records, 5)
	assert.Equal(t, base, page.Records[4].Timestamp)

	page, err = l.Query(context.Background(), issuer, audit.Filter{}, 9, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.NotNil(t, page.Records)

	page, err = l.Query(context.Background(), issuer, audit.Filter{}, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Records, 45)
	assert.Equal(t, 1, page.TotalPages)
}

func TestQuery_Filter(t *testing.T) {
	store := memory.NewStore()
	l := audit.NewLogger(store)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	l.Record(context.Background(), record(audit.OpSubmit, audit.OutcomeSuccess, base))
	q := record(audit.OpQuery, audit.OutcomeSuccess, base.Add(time.Hour))
	q.StatusCode = "217"
	l.Record(context.Background(), q)
	other := record(audit.OpSubmit, audit.OutcomeSuccess, base)
	other.IssuerID = "99999999000191"
	l.Record(context.Background(), other)

	page, err := l.Query(context.Background(), issuer, audit.Filter{Operation: audit.OpQuery}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "217", page.Records[0].StatusCode)

	page, err = l.Query(context.Background(), issuer, audit.Filter{Status: "100"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = l.Query(context.Background(), issuer, audit.Filter{From: base.Add(time.Minute)}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = l.Query(context.Background(), issuer, audit.Filter{To: base}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestQuery_StoreError(t *testing.T) {
	l := audit.NewLogger(&failingStore{})
	_, err := l.Query(context.Background(), issuer, audit.Filter{}, 1, 10)
	assert.Error(t, err)
}

func TestStats_Window(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	l := audit.NewLogger(store, audit.WithClock(func() time.Time { return now }))

	ok := record(audit.OpSubmit, audit.OutcomeSuccess, now.Add(-time.Hour))
	ok.LatencyMs = 100
	failed := record(audit.OpSubmit, audit.OutcomeError, now.Add(-2*time.Hour))
	failed.LatencyMs = 300
	pending := record(audit.OpQuery, audit.OutcomePending, now.AddDate(0, 0, -5))
	pending.LatencyMs = 200
	old := record(audit.OpCancel, audit.OutcomeSuccess, now.AddDate(0, 0, -40))

	for _, r := range []audit.Record{ok, failed, pending, old} {
		l.Record(context.Background(), r)
	}

	st, err := l.Stats(context.Background(), issuer, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalOps)
	assert.Equal(t, 1, st.Successes)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 1, st.Pending)
	assert.InDelta(t, 200.0, st.MeanLatencyMs, 0.001)
	assert.Equal(t, 2, st.ByOperation[audit.OpSubmit])
	assert.Zero(t, st.ByOperation[audit.OpCancel])

	st, err = l.Stats(context.Background(), issuer, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalOps)

	st, err = l.Stats(context.Background(), "00000000000000", 30)
	require.NoError(t, err)
	assert.Zero(t, st.TotalOps)
	assert.Zero(t, st.MeanLatencyMs)
}
