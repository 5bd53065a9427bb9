package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/scanengine/internal/calendar"
	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/criteria"
	"github.com/wonny/scanengine/internal/daywalker"
	"github.com/wonny/scanengine/internal/marketdata"
	"github.com/wonny/scanengine/internal/metrics"
	"github.com/wonny/scanengine/internal/planner"
	"github.com/wonny/scanengine/internal/universe"
	"github.com/wonny/scanengine/internal/workerpool"
	"github.com/wonny/scanengine/pkg/config"
	"github.com/wonny/scanengine/pkg/logger"
)

var (
	// ErrPipelineCancelled is returned by RunScan once cancellation was requested
	ErrPipelineCancelled = errors.New("pipeline cancelled")
	// ErrPipelineClosed is returned by RunScan after Close
	ErrPipelineClosed = errors.New("pipeline closed")
	// ErrForeignHandle means the PoolHandle was issued by another pipeline
	ErrForeignHandle = errors.New("pool handle belongs to another pipeline")
	// ErrNoUniverse means the request had no universe and no resolver is configured
	ErrNoUniverse = errors.New("no universe")
)

// State is the pipeline lifecycle state
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateCancelled   State = "cancelled"
	StateClosed      State = "closed"
)

// Options wires a pipeline
type Options struct {
	Scan       config.ScanConfig
	Source     marketdata.Source
	Cache      contracts.DayCache // nil disables the day cache
	Calendar   *calendar.Calendar
	Evaluators map[contracts.Family]contracts.Evaluator // nil = criteria.Registry()
	Resolver   *universe.Resolver                       // resolves empty universes
	Logger     *logger.Logger
	Metrics    *metrics.Registry
	Now        func() time.Time
}

// PoolHandle is the live pool a finished scan hands to the next chained stage
type PoolHandle struct {
	runID string
	pool  *workerpool.Pool
}

// RunID identifies the pipeline that owns the pool
func (h *PoolHandle) RunID() string { return h.runID }

// Size is the number of workers
func (h *PoolHandle) Size() int { return h.pool.Size() }

// State is the pool lifecycle state
func (h *PoolHandle) State() workerpool.State { return h.pool.State() }

// ScanResult is one finished (or cancelled) scan
type ScanResult struct {
	RunID   string                `json:"run_id"`
	Stage   int                   `json:"stage"`
	Request contracts.ScanRequest `json:"request"`
	daywalker.Result
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Matched returns the instruments matched on the newest as-of date, sorted.
// It is the universe a chained stage scans. A newest day served from the day cache has
// no display rows, so its ledger rows stand in.
func (r *ScanResult) Matched() []string {
	if len(r.Days) == 0 {
		return nil
	}
	newest := r.Days[len(r.Days)-1]

	var ids []string
	if newest.Source == daywalker.SourceCache {
		for _, row := range r.Ledger {
			if row.AsOf.Equal(newest.AsOf) {
				ids = append(ids, row.Instrument)
			}
		}
	} else {
		for _, row := range r.Display {
			if row.AsOf.Equal(newest.AsOf) {
				ids = append(ids, row.Instrument)
			}
		}
	}

	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Pipeline owns one cancellation token, one run id and at most one worker pool.
// Scans on the same pipeline run one at a time and share the pool.
// ⭐ SSOT: 워커풀 생명주기와 취소는 여기서만
type Pipeline struct {
	id      string
	cfg     config.ScanConfig
	source  marketdata.Source
	cache   contracts.DayCache
	cal     *calendar.Calendar
	evals   map[contracts.Family]contracts.Evaluator
	resolve *universe.Resolver
	planner *planner.Planner
	token   *cancel.Token
	base    *logger.Logger // run-scoped, handed to components
	logger  *logger.Logger
	metrics *metrics.Registry
	now     func() time.Time

	runMu sync.Mutex // serializes scans

	mu         sync.Mutex
	pool       *workerpool.Pool
	poolStarts int
	state      State
	latest     *ScanResult
	closed     bool
	subs       map[int]chan *ScanResult
	nextSub    int

	stage atomic.Int64
}

// New creates a pipeline. The pool is started lazily by the first scan.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("engine: market data source is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Calendar == nil {
		opts.Calendar = calendar.New()
	}
	if opts.Evaluators == nil {
		opts.Evaluators = criteria.Registry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	base := opts.Logger.WithRun(id)

	return &Pipeline{
		id:      id,
		cfg:     opts.Scan,
		source:  opts.Source,
		cache:   opts.Cache,
		cal:     opts.Calendar,
		evals:   opts.Evaluators,
		resolve: opts.Resolver,
		planner: planner.New(planner.ConfigFrom(opts.Scan), base),
		token:   cancel.New(),
		base:    base,
		logger:  base.WithField("module", "engine"),
		metrics: opts.Metrics,
		now:     opts.Now,
		state:   StateIdle,
		subs:    make(map[int]chan *ScanResult),
	}, nil
}

// ID is the run id
func (p *Pipeline) ID() string { return p.id }

// Token is the pipeline's cancellation token
func (p *Pipeline) Token() *cancel.Token { return p.token }

// State returns the lifecycle state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PoolStarts counts worker pool start-ups; at most one per pipeline
func (p *Pipeline) PoolStarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poolStarts
}

// Latest returns the most recent scan result, nil before the first
func (p *Pipeline) Latest() *ScanResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// RunScan runs one request on the pipeline's pool, starting it on first use and
// refreshing its universe data otherwise. A cancellation returns the partial result,
// a nil handle and a nil error; the pool is then terminated.
func (p *Pipeline) RunScan(ctx context.Context, req contracts.ScanRequest, handle *PoolHandle) (*ScanResult, *PoolHandle, error) {
	return p.runScan(ctx, req, handle, false)
}

// runScan: feedsNext forces the newest date to be evaluated so a chained stage sees its matches
func (p *Pipeline) runScan(ctx context.Context, req contracts.ScanRequest, handle *PoolHandle, feedsNext bool) (*ScanResult, *PoolHandle, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if err := p.checkOpen(); err != nil {
		return nil, nil, err
	}
	if handle != nil && handle.runID != p.id {
		return nil, nil, fmt.Errorf("%w: %s", ErrForeignHandle, handle.runID)
	}

	r, err := p.prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	stopWatch := p.token.Watch(ctx)
	defer stopWatch()
	runCtx, cancelRun := p.token.Context(ctx)
	defer cancelRun()

	started := p.now()
	stage := int(p.stage.Add(1))
	log := p.logger.WithFields(map[string]interface{}{
		"stage":    stage,
		"family":   string(r.Family),
		"universe": len(r.Universe),
		"as_of":    r.AsOf.Format("2006-01-02"),
		"window":   r.SampleWindow,
	})
	log.Info("Scan started")
	p.setState(StateRunning)

	snap, err := marketdata.BuildSnapshot(runCtx, p.source, &r, p.base)
	if err != nil {
		if p.token.Cancelled() {
			res := p.finish(&ScanResult{RunID: p.id, Stage: stage, Request: r, StartedAt: started, Result: daywalker.Result{Incomplete: true}})
			p.RequestCancel()
			return res, nil, nil
		}
		p.setState(StateIdle)
		return nil, nil, err
	}

	pool, err := p.ensurePool(snap)
	if err != nil {
		p.setState(StateIdle)
		return nil, nil, err
	}
	if !pool.Supports(r.Family) {
		p.setState(StateIdle)
		return nil, nil, fmt.Errorf("%w: %s", workerpool.ErrUnsupportedFamily, r.Family)
	}

	walker := daywalker.New(daywalker.Options{
		Runner: &coordinator{
			pool:     pool,
			planner:  p.planner,
			token:    p.token,
			testMode: p.cfg.TestMode,
			logger:   p.logger,
			metrics:  p.metrics,
		},
		Cache:         p.cache,
		Calendar:      p.cal,
		Token:         p.token,
		CacheToday:    p.cfg.CacheToday,
		ComputeLatest: feedsNext,
		Logger:        p.base,
		Metrics:       p.metrics,
	})

	walked, err := walker.Walk(runCtx, &r)
	if err != nil {
		p.setState(StateIdle)
		return nil, nil, err
	}

	res := p.finish(&ScanResult{
		RunID:     p.id,
		Stage:     stage,
		Request:   r,
		Result:    *walked,
		StartedAt: started,
	})

	if walked.Incomplete || p.token.Cancelled() {
		log.WithField("matched", len(res.Display)).Warn("Scan cancelled, returning partial result")
		p.RequestCancel()
		return res, nil, nil
	}

	p.setState(StateIdle)
	log.WithFields(map[string]interface{}{
		"matched":    len(res.Display),
		"batches":    res.Batches,
		"cache_hits": res.CacheHits,
		"duration":   res.Duration.String(),
	}).Info("Scan completed")

	return res, &PoolHandle{runID: p.id, pool: pool}, nil
}

// RunChain runs stages in order on one pool; each stage after the first scans the
// instruments the previous stage matched. An empty match list ends the chain early.
func (p *Pipeline) RunChain(ctx context.Context, stages []contracts.ScanRequest) ([]*ScanResult, error) {
	var (
		out    []*ScanResult
		handle *PoolHandle
	)

	for i, st := range stages {
		if i > 0 {
			prev := out[len(out)-1].Matched()
			if len(prev) == 0 {
				p.logger.WithField("stage", i).Info("Previous stage matched nothing, chain ends")
				break
			}
			st.Universe = prev
		}

		res, h, err := p.runScan(ctx, st, handle, i < len(stages)-1)
		if err != nil {
			return out, fmt.Errorf("stage %d: %w", i+1, err)
		}
		out = append(out, res)
		if h == nil {
			break
		}
		handle = h
	}

	return out, nil
}

// RequestCancel sets the token and terminates the pool within the configured timeout.
// Idempotent; safe from signal handlers and HTTP handlers.
func (p *Pipeline) RequestCancel() error {
	if p.token.Cancel() {
		p.logger.Warn("Cancellation requested")
	}

	p.mu.Lock()
	if p.state != StateClosed && p.state != StateCancelled {
		p.state = StateTerminating
	}
	p.mu.Unlock()

	err := p.terminatePool()

	p.mu.Lock()
	if p.state != StateClosed {
		p.state = StateCancelled
	}
	p.mu.Unlock()

	return err
}

// Close terminates the pool at pipeline end. Later calls return the first result.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
	p.mu.Unlock()

	err := p.terminatePool()

	p.mu.Lock()
	if p.state != StateCancelled {
		p.state = StateClosed
	}
	p.mu.Unlock()

	return err
}

// Subscribe delivers every finished scan result until the returned func is called
// or the pipeline is closed. Slow subscribers miss results instead of blocking scans.
func (p *Pipeline) Subscribe() (<-chan *ScanResult, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan *ScanResult, 8)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				close(c)
				delete(p.subs, id)
			}
		})
	}
}

// Signature prepares req exactly as RunScan would and returns it with its day cache signature
func (p *Pipeline) Signature(ctx context.Context, req contracts.ScanRequest) (contracts.ScanRequest, string, error) {
	r, err := p.prepare(ctx, req)
	if err != nil {
		return r, "", err
	}
	return r, contracts.Signature(&r), nil
}

// prepare fills request defaults on a private copy and validates it
func (p *Pipeline) prepare(ctx context.Context, req contracts.ScanRequest) (contracts.ScanRequest, error) {
	r := req.Clone()

	if r.AsOf.IsZero() {
		r.AsOf = p.now()
	}
	r.AsOf = p.cal.Latest(r.AsOf)
	if r.Lookback == 0 {
		r.Lookback = p.cfg.LookbackDays
	}
	if r.Orientation == "" {
		r.Orientation = contracts.OrientationBuy
	}

	if len(r.Universe) == 0 {
		if p.resolve == nil {
			return r, ErrNoUniverse
		}
		ids, err := p.resolve.Resolve(ctx, r.Exchange, nil)
		if err != nil {
			return r, fmt.Errorf("resolve universe: %w", err)
		}
		r.Universe = ids
	}

	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

// ensurePool starts the pool on first use; later scans only swap its data
func (p *Pipeline) ensurePool(data contracts.SeriesProvider) (*workerpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.pool.RefreshUniverseData(data)
		return p.pool, nil
	}

	pool, err := workerpool.Start(workerpool.Options{
		Size:       p.cfg.WorkerCount(),
		QueueSize:  p.cfg.MaxPerIteration,
		Data:       data,
		Token:      p.token,
		Evaluators: p.evals,
		Logger:     p.base,
		Metrics:    p.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("start worker pool: %w", err)
	}

	p.pool = pool
	p.poolStarts++
	return pool, nil
}

func (p *Pipeline) terminatePool() error {
	p.mu.Lock()
	pool := p.pool
	p.mu.Unlock()

	if pool == nil {
		return nil
	}
	return pool.Terminate(p.cfg.TerminateTimeout)
}

func (p *Pipeline) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.token.Cancelled() {
		return ErrPipelineCancelled
	}
	return nil
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed || p.state == StateCancelled || p.state == StateTerminating {
		return
	}
	p.state = s
}

// finish stamps the duration, stores the result as latest and fans it out
func (p *Pipeline) finish(res *ScanResult) *ScanResult {
	res.Duration = p.now().Sub(res.StartedAt)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = res
	for _, ch := range p.subs {
		select {
		case ch <- res:
		default:
		}
	}
	return res
}
