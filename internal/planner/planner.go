package planner

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/logger"
)

// Planner turns (universe, as-of date, request) into a Batch
// ⭐ SSOT: 작업 분할(청크) 로직은 여기서만
type Planner struct {
	cfg    Config
	seq    atomic.Uint64
	logger *logger.Logger
}

// New creates a planner
func New(cfg Config, log *logger.Logger) *Planner {
	return &Planner{
		cfg:    cfg,
		logger: log.WithField("module", "planner"),
	}
}

// Plan validates the universe and sizes a Batch. No WorkItem is built here;
// iterations are materialized one at a time by Batch.Next.
func (p *Planner) Plan(universe []string, asOf time.Time, req *contracts.ScanRequest) (*Batch, error) {
	seen := make(map[string]struct{}, len(universe))
	for _, id := range universe {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", contracts.ErrDuplicateInstrument, id)
		}
		seen[id] = struct{}{}
	}

	estimate, per := p.cfg.Chunking(len(universe))
	b := &Batch{
		ID:       p.seq.Add(1),
		AsOf:     asOf,
		Request:  req,
		universe: universe,
		per:      per,
	}
	if per > 0 {
		b.iterations = len(universe) / per
	}

	p.logger.WithFields(map[string]interface{}{
		"batch":         b.ID,
		"as_of":         asOf.Format("2006-01-02"),
		"instruments":   len(universe),
		"iterations":    b.iterations,
		"estimate":      estimate,
		"per_iteration": per,
	}).Debug("Batch planned")

	return b, nil
}

// Batch is the ordered set of WorkItems for one as-of date.
// Next is called from the coordinator goroutine only; Abandon may be called from anywhere.
type Batch struct {
	ID      uint64
	AsOf    time.Time
	Request *contracts.ScanRequest

	universe   []string
	per        int
	iterations int
	next       int
	emitted    int

	abandoned atomic.Bool
}

// Size is the number of instruments in the batch
func (b *Batch) Size() int { return len(b.universe) }

// Iterations is the real number of iterations
func (b *Batch) Iterations() int { return b.iterations }

// PerIteration is the nominal iteration size; the last iteration also carries the remainder
func (b *Batch) PerIteration() int { return b.per }

// Emitted counts WorkItems materialized so far
func (b *Batch) Emitted() int { return b.emitted }

// Bounds returns the universe slice bounds of iteration i
func (b *Batch) Bounds(i int) (lo, hi int) {
	lo = i * b.per
	hi = lo + b.per
	if i == b.iterations-1 {
		hi = len(b.universe)
	}
	return lo, hi
}

// Next materializes the next iteration's WorkItems in universe order.
// It returns false when the batch is exhausted, abandoned, or the token is set,
// so a cancellation between iterations stops WorkItem creation.
func (b *Batch) Next(token *cancel.Token) ([]contracts.WorkItem, bool) {
	if b.next >= b.iterations || b.Abandoned() || (token != nil && token.Cancelled()) {
		return nil, false
	}

	lo, hi := b.Bounds(b.next)
	b.next++

	items := make([]contracts.WorkItem, 0, hi-lo)
	for _, id := range b.universe[lo:hi] {
		items = append(items, contracts.WorkItem{
			Instrument: id,
			AsOf:       b.AsOf,
			Request:    b.Request,
			Batch:      b.ID,
		})
	}
	b.emitted += len(items)

	return items, true
}

// Abandon marks the batch so queued items are skipped instead of evaluated
func (b *Batch) Abandon() { b.abandoned.Store(true) }

// Abandoned reports whether Abandon was called
func (b *Batch) Abandoned() bool { return b.abandoned.Load() }
