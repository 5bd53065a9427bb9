package daywalker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/internal/aggregate"
	"github.com/wonny/scanengine/internal/calendar"
	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/daycache"
	"github.com/wonny/scanengine/internal/metrics"
)

// Monday
var today = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

type fakeRunner struct {
	calls []time.Time
	hook  func(call int, asOf time.Time) (DayResult, error)
}

func (f *fakeRunner) RunDay(_ context.Context, req *contracts.ScanRequest, asOf time.Time) (DayResult, error) {
	f.calls = append(f.calls, asOf)
	if f.hook != nil {
		return f.hook(len(f.calls), asOf)
	}
	return completedDay(asOf, req.Orientation), nil
}

func completedDay(asOf time.Time, o contracts.Orientation) DayResult {
	sample := contracts.BacktestSample{
		Instrument:  "005930",
		AsOf:        asOf,
		Orientation: o,
		Returns:     map[int]float64{1: 1.5, 5: -0.5},
	}
	return DayResult{
		AsOf:      asOf,
		Display:   contracts.DisplayTable{{Instrument: "005930", AsOf: asOf, Fields: map[string]string{"close": "100.00"}}},
		Persist:   contracts.PersistTable{{Instrument: "005930", AsOf: asOf, Values: map[string]float64{"close": 100}}},
		Ledger:    []contracts.LedgerRow{contracts.NewLedgerRow(sample)},
		Completed: true,
	}
}

func request(window int) *contracts.ScanRequest {
	return &contracts.ScanRequest{
		Family:       contracts.FamilyMomentum,
		Universe:     []string{"005930", "000660"},
		Exchange:     "KOSPI",
		AsOf:         today,
		SampleWindow: window,
		Orientation:  contracts.OrientationBuy,
		Lookback:     60,
	}
}

func TestDates(t *testing.T) {
	dates := Dates(calendar.New(), request(2))
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC), dates[1])
	assert.Equal(t, today, dates[2])

	assert.Equal(t, []time.Time{today}, Dates(calendar.New(), request(0)))
}

func TestWalk_CachedDayIsNotRecomputed(t *testing.T) {
	ctx := context.Background()
	cache := daycache.NewMemoryStore()
	req := request(2)

	// today already cached, the two prior days are not
	require.NoError(t, cache.Put(ctx, contracts.Signature(req), today, completedDay(today, req.Orientation).Ledger))

	runner := &fakeRunner{}
	w := New(Options{Runner: runner, Cache: cache})
	res, err := w.Walk(ctx, req)
	require.NoError(t, err)

	assert.Len(t, runner.calls, 2)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 1, res.CacheHits)
	assert.Equal(t, 3, res.Summary.Days)
	assert.Len(t, res.Ledger, 3)
	assert.False(t, res.Incomplete)
	assert.Equal(t, StateDone, w.State())

	// newest first
	assert.Equal(t, today, res.Ledger[0].AsOf)
	assert.Equal(t, SourceCache, res.Days[2].Source)
}

func TestWalk_SecondWalkComesFromCache(t *testing.T) {
	ctx := context.Background()
	cache := daycache.NewMemoryStore()
	req := request(3)

	first := &fakeRunner{}
	res1, err := New(Options{Runner: first, Cache: cache, CacheToday: true}).Walk(ctx, req)
	require.NoError(t, err)
	assert.Len(t, first.calls, 4)

	second := &fakeRunner{}
	res2, err := New(Options{Runner: second, Cache: cache, CacheToday: true}).Walk(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, second.calls)
	assert.Equal(t, 4, res2.CacheHits)
	assert.Zero(t, res2.Batches)

	b1, err := json.Marshal(res1.Ledger)
	require.NoError(t, err)
	b2, err := json.Marshal(res2.Ledger)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestWalk_TodayNotCachedByDefault(t *testing.T) {
	cache := daycache.NewMemoryStore()
	_, err := New(Options{Runner: &fakeRunner{}, Cache: cache}).Walk(context.Background(), request(2))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestWalk_SingleDayScanNeverCached(t *testing.T) {
	cache := daycache.NewMemoryStore()
	res, err := New(Options{Runner: &fakeRunner{}, Cache: cache, CacheToday: true}).Walk(context.Background(), request(0))
	require.NoError(t, err)
	assert.Zero(t, cache.Len())
	assert.Len(t, res.Display, 1)
	assert.Equal(t, 1, res.Batches)
}

func TestWalk_QuotaCutAndFailedDaysAreNotCached(t *testing.T) {
	ctx := context.Background()
	cache := daycache.NewMemoryStore()
	req := request(2)

	runner := &fakeRunner{hook: func(call int, asOf time.Time) (DayResult, error) {
		day := completedDay(asOf, req.Orientation)
		switch call {
		case 1:
			day.QuotaReached = true
		case 2:
			day.Stats = aggregate.Stats{Failed: 1}
		}
		return day, nil
	}}
	res, err := New(Options{Runner: runner, Cache: cache, CacheToday: true}).Walk(ctx, req)
	require.NoError(t, err)

	require.Len(t, res.Days, 3)
	assert.False(t, res.Days[0].Cached)
	assert.False(t, res.Days[1].Cached)
	assert.True(t, res.Days[2].Cached)
	assert.Equal(t, 1, cache.Len())
	assert.False(t, res.Incomplete)

	// the cut and failed days are recomputed on the next walk
	again := &fakeRunner{}
	res, err = New(Options{Runner: again, Cache: cache, CacheToday: true}).Walk(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{res.Days[0].AsOf, res.Days[1].AsOf}, again.calls)
	assert.Equal(t, 1, res.CacheHits)
}

func TestDayResult_Cacheable(t *testing.T) {
	day := completedDay(today, contracts.OrientationBuy)
	assert.True(t, day.Cacheable())

	cut := day
	cut.QuotaReached = true
	assert.False(t, cut.Cacheable())

	failed := day
	failed.Stats.Failed = 2
	assert.False(t, failed.Cacheable())

	cancelled := day
	cancelled.Completed = false
	assert.False(t, cancelled.Cacheable())
}

func TestWalk_ComputeLatestSkipsCachedNewestDay(t *testing.T) {
	ctx := context.Background()
	cache := daycache.NewMemoryStore()
	req := request(2)

	_, err := New(Options{Runner: &fakeRunner{}, Cache: cache, CacheToday: true}).Walk(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 3, cache.Len())

	runner := &fakeRunner{}
	res, err := New(Options{Runner: runner, Cache: cache, CacheToday: true, ComputeLatest: true}).Walk(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{today}, runner.calls)
	assert.Equal(t, 2, res.CacheHits)
	assert.Equal(t, SourceComputed, res.Days[2].Source)
	assert.Len(t, res.Display, 1)
	assert.Len(t, res.Ledger, 3)
}

func TestWalk_CorruptEntryIsRecomputed(t *testing.T) {
	ctx := context.Background()
	cache := daycache.NewMemoryStore()
	req := request(1)
	sig := contracts.Signature(req)
	prior := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	cache.PutRaw(sig, prior, []byte("{not json"))

	m := metrics.New()
	runner := &fakeRunner{}
	res, err := New(Options{Runner: runner, Cache: cache, Metrics: m}).Walk(ctx, req)
	require.NoError(t, err)

	assert.Len(t, runner.calls, 2)
	assert.Zero(t, res.CacheHits)

	rows, found, err := cache.Get(ctx, sig, prior)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, rows, 1)
}

func TestWalk_CancelStopsAfterCurrentDay(t *testing.T) {
	cache := daycache.NewMemoryStore()
	token := cancel.New()

	runner := &fakeRunner{}
	runner.hook = func(call int, asOf time.Time) (DayResult, error) {
		day := completedDay(asOf, contracts.OrientationBuy)
		if call == 2 {
			token.Cancel()
			day.Completed = false
		}
		return day, nil
	}

	w := New(Options{Runner: runner, Cache: cache, Token: token})
	res, err := w.Walk(context.Background(), request(4))
	require.NoError(t, err)

	assert.Len(t, runner.calls, 2)
	assert.True(t, res.Incomplete)
	assert.Equal(t, StateCancelled, w.State())
	assert.Len(t, res.Ledger, 2)
	// only the fully completed first day is cached
	assert.Equal(t, 1, cache.Len())
}

func TestWalk_RunnerErrorIsReturned(t *testing.T) {
	boom := errors.New("pool gone")
	runner := &fakeRunner{hook: func(int, time.Time) (DayResult, error) { return DayResult{}, boom }}

	_, err := New(Options{Runner: runner}).Walk(context.Background(), request(1))
	assert.ErrorIs(t, err, boom)
}

func TestWalk_SingleUse(t *testing.T) {
	w := New(Options{Runner: &fakeRunner{}})
	_, err := w.Walk(context.Background(), request(0))
	require.NoError(t, err)
	_, err = w.Walk(context.Background(), request(0))
	assert.Error(t, err)
}
