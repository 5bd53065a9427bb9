package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/logger"
)

var asOf = time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

// fakeProvider returns a one-bar series whose close encodes a version, or an error per instrument
type fakeProvider struct {
	version float64
	errs    map[string]error
}

func (f *fakeProvider) Fetch(_ context.Context, instrument string, at time.Time, _ int) (contracts.Series, error) {
	if err, ok := f.errs[instrument]; ok {
		return contracts.Series{}, err
	}
	return contracts.Series{
		Instrument: instrument,
		AsOf:       at,
		Bars:       []contracts.Bar{{Date: at, Close: f.version}},
		Forward:    []contracts.Bar{{Close: f.version * 1.1}},
	}, nil
}

// matchSet matches listed instruments and records how many times it ran
type matchSet struct {
	ids   map[string]bool
	calls atomic.Int64
}

func (m *matchSet) Evaluate(s contracts.Series, _ contracts.Params) contracts.Outcome {
	m.calls.Add(1)
	if !m.ids[s.Instrument] {
		return contracts.NoMatch()
	}
	return contracts.Match(
		&contracts.ScanRecord{Persist: map[string]float64{"close": s.Last().Close}},
		&contracts.BacktestSample{Returns: map[int]float64{1: 10}},
	)
}

type gate struct{ abandoned atomic.Bool }

func (g *gate) Abandoned() bool { return g.abandoned.Load() }

func request(family contracts.Family) *contracts.ScanRequest {
	return &contracts.ScanRequest{
		Family:      family,
		Orientation: contracts.OrientationSell,
		Lookback:    1,
		AsOf:        asOf,
	}
}

func items(req *contracts.ScanRequest, ids ...string) []contracts.WorkItem {
	out := make([]contracts.WorkItem, len(ids))
	for i, id := range ids {
		out[i] = contracts.WorkItem{Instrument: id, AsOf: asOf, Request: req, Batch: 1}
	}
	return out
}

func collect(t *testing.T, p *Pool, n int) map[string]Result {
	t.Helper()
	out := make(map[string]Result, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case r := <-p.Results():
			_, dup := out[r.Item.Instrument]
			require.False(t, dup, "duplicate result for %s", r.Item.Instrument)
			out[r.Item.Instrument] = r
		case <-timeout:
			t.Fatalf("got %d of %d results", len(out), n)
		}
	}
	return out
}

func startPool(t *testing.T, size int, data contracts.SeriesProvider, evals map[contracts.Family]contracts.Evaluator) *Pool {
	t.Helper()
	p, err := Start(Options{
		Size:       size,
		QueueSize:  16,
		Data:       data,
		Evaluators: evals,
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Terminate(time.Second) })
	return p
}

func TestStart_NoWorkers(t *testing.T) {
	_, err := Start(Options{Size: 0, Data: &fakeProvider{}})
	assert.True(t, errors.Is(err, ErrNoWorkers))
}

func TestPool_OneResultPerItem(t *testing.T) {
	provider := &fakeProvider{
		version: 1,
		errs: map[string]error{
			"NODATA": fmt.Errorf("prices: %w", contracts.ErrNoData),
			"BROKEN": errors.New("connection reset"),
		},
	}
	eval := &matchSet{ids: map[string]bool{"A": true, "C": true}}
	p := startPool(t, 4, provider, map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: eval})

	req := request(contracts.FamilyMomentum)
	ids := []string{"A", "B", "C", "NODATA", "BROKEN"}
	n, err := p.Submit(context.Background(), nil, items(req, ids...))
	require.NoError(t, err)
	require.Equal(t, len(ids), n)

	got := collect(t, p, len(ids))
	assert.Equal(t, StatusMatch, got["A"].Status)
	assert.Equal(t, StatusNoMatch, got["B"].Status)
	assert.Equal(t, StatusMatch, got["C"].Status)
	assert.Equal(t, StatusNoData, got["NODATA"].Status)
	assert.Equal(t, StatusFailed, got["BROKEN"].Status)
	assert.Error(t, got["BROKEN"].Err)
	assert.EqualValues(t, 3, eval.calls.Load())
}

func TestPool_StampsOrientationAndIdentity(t *testing.T) {
	eval := &matchSet{ids: map[string]bool{"A": true}}
	p := startPool(t, 1, &fakeProvider{version: 1}, map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: eval})

	_, err := p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "A"))
	require.NoError(t, err)

	r := collect(t, p, 1)["A"]
	require.NotNil(t, r.Outcome.Record)
	require.NotNil(t, r.Outcome.Sample)
	assert.Equal(t, "A", r.Outcome.Record.Instrument)
	assert.Equal(t, asOf, r.Outcome.Record.AsOf)
	assert.Equal(t, contracts.OrientationSell, r.Outcome.Sample.Orientation)
	assert.Equal(t, "A", r.Outcome.Sample.Instrument)
}

func TestPool_UnsupportedFamily(t *testing.T) {
	p := startPool(t, 1, &fakeProvider{}, map[contracts.Family]contracts.Evaluator{})
	assert.False(t, p.Supports(contracts.FamilyBreakout))

	_, err := p.Submit(context.Background(), nil, items(request(contracts.FamilyBreakout), "A"))
	require.NoError(t, err)

	r := collect(t, p, 1)["A"]
	assert.Equal(t, StatusFailed, r.Status)
	assert.True(t, errors.Is(r.Err, ErrUnsupportedFamily))
}

func TestPool_EvaluatorPanicIsNoMatch(t *testing.T) {
	panicky := contracts.EvaluatorFunc(func(s contracts.Series, _ contracts.Params) contracts.Outcome {
		if s.Instrument == "BAD" {
			panic("index out of range")
		}
		return contracts.Match(&contracts.ScanRecord{}, nil)
	})
	p := startPool(t, 2, &fakeProvider{version: 1}, map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: panicky})

	_, err := p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "BAD", "GOOD"))
	require.NoError(t, err)

	got := collect(t, p, 2)
	assert.Equal(t, StatusNoMatch, got["BAD"].Status)
	assert.True(t, got["BAD"].Panicked)
	assert.Equal(t, StatusMatch, got["GOOD"].Status)
	assert.Equal(t, StateRunning, p.State())
}

func TestPool_AbandonedBatchIsSkipped(t *testing.T) {
	eval := &matchSet{}
	p := startPool(t, 2, &fakeProvider{}, map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: eval})

	g := &gate{}
	g.abandoned.Store(true)
	_, err := p.Submit(context.Background(), g, items(request(contracts.FamilyMomentum), "A", "B", "C"))
	require.NoError(t, err)

	for _, r := range collect(t, p, 3) {
		assert.Equal(t, StatusSkipped, r.Status)
	}
	assert.Zero(t, eval.calls.Load())
}

func TestPool_RefreshUniverseData(t *testing.T) {
	closeOf := contracts.EvaluatorFunc(func(s contracts.Series, _ contracts.Params) contracts.Outcome {
		return contracts.Match(&contracts.ScanRecord{Persist: map[string]float64{"close": s.Last().Close}}, nil)
	})
	p := startPool(t, 2, &fakeProvider{version: 1}, map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: closeOf})
	req := request(contracts.FamilyMomentum)

	_, err := p.Submit(context.Background(), nil, items(req, "A"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, collect(t, p, 1)["A"].Outcome.Record.Persist["close"])

	p.RefreshUniverseData(&fakeProvider{version: 2})
	p.RefreshUniverseData(nil)

	_, err = p.Submit(context.Background(), nil, items(req, "A"))
	require.NoError(t, err)
	assert.Equal(t, 2.0, collect(t, p, 1)["A"].Outcome.Record.Persist["close"])
	assert.EqualValues(t, 1, p.Refreshes())
}

func TestPool_TerminateSendsOneStopPerWorker(t *testing.T) {
	p, err := Start(Options{Size: 5, Data: &fakeProvider{}, Logger: logger.Nop()})
	require.NoError(t, err)

	require.NoError(t, p.Terminate(time.Second))
	assert.Equal(t, 5, p.StopsSent())
	assert.Equal(t, StateTerminated, p.State())

	// idempotent
	require.NoError(t, p.Terminate(time.Second))
	assert.Equal(t, 5, p.StopsSent())

	_, err = p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "A"))
	assert.True(t, errors.Is(err, ErrPoolTerminated))

	select {
	case _, open := <-p.Results():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("results channel not closed after terminate")
	}
}

func TestPool_TerminateDiscardsQueued(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 16)
	var evaluated atomic.Int64
	blocking := contracts.EvaluatorFunc(func(contracts.Series, contracts.Params) contracts.Outcome {
		evaluated.Add(1)
		entered <- struct{}{}
		<-release
		return contracts.NoMatch()
	})

	p, err := Start(Options{
		Size:       1,
		QueueSize:  8,
		Data:       &fakeProvider{},
		Evaluators: map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: blocking},
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "A", "B", "C", "D", "E"))
	require.NoError(t, err)
	<-entered

	done := make(chan error, 1)
	go func() { done <- p.Terminate(2 * time.Second) }()

	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	assert.EqualValues(t, 1, evaluated.Load(), "queued items must not be evaluated")
	assert.Equal(t, 1, p.StopsSent())
}

func TestPool_TerminateTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	stuck := contracts.EvaluatorFunc(func(contracts.Series, contracts.Params) contracts.Outcome {
		entered <- struct{}{}
		<-release
		return contracts.NoMatch()
	})

	p, err := Start(Options{
		Size:       1,
		Data:       &fakeProvider{},
		Evaluators: map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: stuck},
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "A"))
	require.NoError(t, err)
	<-entered

	err = p.Terminate(30 * time.Millisecond)
	assert.True(t, errors.Is(err, ErrTerminateTimeout))
	assert.Equal(t, StateTerminated, p.State())
	assert.True(t, errors.Is(p.Terminate(time.Second), ErrTerminateTimeout))
}

func TestPool_TerminateTimeoutReleasesDrain(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	stuck := contracts.EvaluatorFunc(func(contracts.Series, contracts.Params) contracts.Outcome {
		entered <- struct{}{}
		<-release
		return contracts.NoMatch()
	})

	base := runtime.NumGoroutine()
	p, err := Start(Options{
		Size:       1,
		Data:       &fakeProvider{},
		Evaluators: map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: stuck},
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "A"))
	require.NoError(t, err)
	<-entered

	require.ErrorIs(t, p.Terminate(30*time.Millisecond), ErrTerminateTimeout)

	// hung worker + result closer; nothing else outlives Terminate
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base+2
	}, time.Second, 10*time.Millisecond)
}

func TestPool_TokenStopsWorkers(t *testing.T) {
	tok := cancel.New()
	p, err := Start(Options{Size: 3, Data: &fakeProvider{}, Token: tok, Logger: logger.Nop()})
	require.NoError(t, err)

	tok.Cancel()

	select {
	case _, open := <-p.Results():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after cancellation")
	}

	n, err := p.Submit(context.Background(), nil, items(request(contracts.FamilyMomentum), "A"))
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, p.Terminate(time.Second))
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	eval := &matchSet{ids: map[string]bool{}}
	p := startPool(t, 4, &fakeProvider{version: 1}, map[contracts.Family]contracts.Evaluator{contracts.FamilyMomentum: eval})
	req := request(contracts.FamilyMomentum)

	const perSubmitter = 50
	var wg sync.WaitGroup
	for s := 0; s < 3; s++ {
		ids := make([]string, perSubmitter)
		for i := range ids {
			ids[i] = fmt.Sprintf("S%d-%03d", s, i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Submit(context.Background(), nil, items(req, ids...))
		}()
	}

	got := collect(t, p, 3*perSubmitter)
	wg.Wait()
	assert.Len(t, got, 3*perSubmitter)
}
