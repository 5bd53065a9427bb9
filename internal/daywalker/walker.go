package daywalker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wonny/scanengine/internal/aggregate"
	"github.com/wonny/scanengine/internal/calendar"
	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/daycache"
	"github.com/wonny/scanengine/internal/ledger"
	"github.com/wonny/scanengine/internal/metrics"
	"github.com/wonny/scanengine/pkg/logger"
)

// State is the walker lifecycle state
type State int32

const (
	StateIdle State = iota
	StateWalking
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Day sources
const (
	SourceCache    = "cache"
	SourceComputed = "computed"
)

// DayResult is what a BatchRunner reports for one as-of date
type DayResult struct {
	AsOf    time.Time
	Display contracts.DisplayTable
	Persist contracts.PersistTable
	Ledger  []contracts.LedgerRow
	Stats   aggregate.Stats

	// Completed is true when every submitted item was accounted for or the quota was reached
	Completed    bool
	QuotaReached bool
}

// Cacheable reports whether the day holds every row any request with the same signature
// would compute: not cancelled, not cut by the quota, no failed fetches.
func (d DayResult) Cacheable() bool {
	return d.Completed && !d.QuotaReached && d.Stats.Failed == 0
}

// BatchRunner plans, submits and folds one as-of date
type BatchRunner interface {
	RunDay(ctx context.Context, req *contracts.ScanRequest, asOf time.Time) (DayResult, error)
}

// DayReport describes how one date was produced
type DayReport struct {
	AsOf         time.Time       `json:"as_of"`
	Source       string          `json:"source"`
	Matched      int             `json:"matched"`
	LedgerRows   int             `json:"ledger_rows"`
	Cached       bool            `json:"cached"` // written to the day cache by this walk
	Completed    bool            `json:"completed"`
	QuotaReached bool            `json:"quota_reached"`
	Stats        aggregate.Stats `json:"stats"`
	Duration     time.Duration   `json:"duration"`
}

// Result is the outcome of one walk
type Result struct {
	Signature  string                 `json:"signature"`
	Display    contracts.DisplayTable `json:"display"`
	Persist    contracts.PersistTable `json:"persist"`
	Ledger     []contracts.LedgerRow  `json:"ledger"`
	Summary    ledger.Summary         `json:"summary"`
	Days       []DayReport            `json:"days"`
	Batches    int                    `json:"batches"`
	CacheHits  int                    `json:"cache_hits"`
	Incomplete bool                   `json:"incomplete"`
}

// Options configures a Walker
type Options struct {
	Runner     BatchRunner
	Cache      contracts.DayCache // nil disables caching
	Calendar   *calendar.Calendar
	Token      *cancel.Token
	CacheToday bool
	// ComputeLatest evaluates the newest date even when it is cached, so its display rows exist
	ComputeLatest bool
	Logger        *logger.Logger
	Metrics       *metrics.Registry
}

// Walker iterates as-of dates newest-last, reusing cached days and running a batch for the rest.
// A Walker is single use: one Walk per instance.
// ⭐ SSOT: 백테스트 날짜 순회는 여기서만
type Walker struct {
	runner     BatchRunner
	cache      contracts.DayCache
	cal        *calendar.Calendar
	token      *cancel.Token
	cacheToday bool
	latest     bool
	logger     *logger.Logger
	metrics    *metrics.Registry

	state atomic.Int32
}

// New creates a walker
func New(opts Options) *Walker {
	if opts.Calendar == nil {
		opts.Calendar = calendar.New()
	}
	if opts.Token == nil {
		opts.Token = cancel.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Walker{
		runner:     opts.Runner,
		cache:      opts.Cache,
		cal:        opts.Calendar,
		token:      opts.Token,
		cacheToday: opts.CacheToday,
		latest:     opts.ComputeLatest,
		logger:     opts.Logger.WithField("module", "daywalker"),
		metrics:    opts.Metrics,
	}
}

// State returns the lifecycle state
func (w *Walker) State() State { return State(w.state.Load()) }

// Dates lists the as-of dates a request covers, oldest first:
// offsets SampleWindow … 0 back from the latest trading day on or before req.AsOf.
func Dates(cal *calendar.Calendar, req *contracts.ScanRequest) []time.Time {
	out := make([]time.Time, 0, req.SampleWindow+1)
	for offset := req.SampleWindow; offset >= 0; offset-- {
		out = append(out, cal.Back(req.AsOf, offset))
	}
	return out
}

// Walk runs the request over every as-of date. A cancellation yields the partial
// result flagged Incomplete with a nil error; only runner errors are returned.
func (w *Walker) Walk(ctx context.Context, req *contracts.ScanRequest) (*Result, error) {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateWalking)) {
		return nil, fmt.Errorf("day walker already used (state %s)", w.State())
	}

	sig := contracts.Signature(req)
	dates := Dates(w.cal, req)
	today := dates[len(dates)-1]
	book := ledger.New()
	res := &Result{Signature: sig}

	log := w.logger.WithFields(map[string]interface{}{
		"signature": sig,
		"family":    string(req.Family),
		"days":      len(dates),
	})
	log.Info("Day walk started")

	for _, asOf := range dates {
		if w.token.Cancelled() {
			break
		}

		start := time.Now()
		report := DayReport{AsOf: asOf}

		if rows, ok := w.cached(ctx, sig, asOf, today); ok {
			book.Merge(asOf, rows)
			report.Source = SourceCache
			report.LedgerRows = len(rows)
			report.Completed = true
			report.Duration = time.Since(start)
			res.CacheHits++
			res.Days = append(res.Days, report)
			w.metrics.ObserveDay(SourceCache, report.Duration)
			continue
		}

		day, err := w.runner.RunDay(ctx, req, asOf)
		if err != nil {
			w.state.Store(int32(StateDone))
			return nil, fmt.Errorf("run day %s: %w", asOf.Format("2006-01-02"), err)
		}
		res.Batches++

		book.Merge(asOf, day.Ledger)
		res.Display = append(res.Display, day.Display...)
		res.Persist = append(res.Persist, day.Persist...)

		report.Source = SourceComputed
		report.Matched = len(day.Display)
		report.LedgerRows = len(day.Ledger)
		report.Completed = day.Completed
		report.QuotaReached = day.QuotaReached
		report.Stats = day.Stats

		if day.Cacheable() && w.cacheable(req, asOf, today) {
			report.Cached = w.store(ctx, sig, asOf, day.Ledger)
		}

		report.Duration = time.Since(start)
		res.Days = append(res.Days, report)
		w.metrics.ObserveDay(SourceComputed, report.Duration)

		if !day.Completed {
			res.Incomplete = true
		}
	}

	if len(res.Days) < len(dates) {
		res.Incomplete = true
	}

	res.Ledger = book.Finalize()
	res.Summary = book.Summary()

	if res.Incomplete {
		w.state.Store(int32(StateCancelled))
		log.WithFields(map[string]interface{}{
			"completed_days": len(res.Days),
			"batches":        res.Batches,
		}).Warn("Day walk cancelled, returning partial result")
		return res, nil
	}

	w.state.Store(int32(StateDone))
	log.WithFields(map[string]interface{}{
		"batches":     res.Batches,
		"cache_hits":  res.CacheHits,
		"ledger_rows": len(res.Ledger),
	}).Info("Day walk completed")

	return res, nil
}

// cacheable: backtest days only, today only when configured
func (w *Walker) cacheable(req *contracts.ScanRequest, asOf, today time.Time) bool {
	if w.cache == nil || req.SampleWindow == 0 {
		return false
	}
	if asOf.Equal(today) {
		return w.cacheToday
	}
	return true
}

// cached looks the date up unless it is the newest date and the walk must compute it
func (w *Walker) cached(ctx context.Context, sig string, asOf, today time.Time) ([]contracts.LedgerRow, bool) {
	if w.latest && asOf.Equal(today) {
		return nil, false
	}
	return w.lookup(ctx, sig, asOf)
}

func (w *Walker) lookup(ctx context.Context, sig string, asOf time.Time) ([]contracts.LedgerRow, bool) {
	if w.cache == nil {
		return nil, false
	}

	rows, found, err := w.cache.Get(ctx, sig, asOf)
	if err != nil {
		result := "error"
		if errors.Is(err, daycache.ErrCorrupt) {
			result = "corrupt"
		}
		w.metrics.RecordCache(result)
		w.logger.WithError(err).WithField("as_of", asOf.Format("2006-01-02")).
			Warn("Day cache unreadable, recomputing")
		return nil, false
	}
	if !found {
		w.metrics.RecordCache("miss")
		return nil, false
	}

	w.metrics.RecordCache("hit")
	return rows, true
}

func (w *Walker) store(ctx context.Context, sig string, asOf time.Time, rows []contracts.LedgerRow) bool {
	if err := w.cache.Put(ctx, sig, asOf, rows); err != nil {
		w.logger.WithError(err).WithField("as_of", asOf.Format("2006-01-02")).
			Warn("Failed to cache day")
		return false
	}
	return true
}
