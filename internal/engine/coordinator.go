package engine

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/scanengine/internal/aggregate"
	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/daywalker"
	"github.com/wonny/scanengine/internal/metrics"
	"github.com/wonny/scanengine/internal/planner"
	"github.com/wonny/scanengine/internal/workerpool"
	"github.com/wonny/scanengine/pkg/logger"
)

// Batch statuses recorded in metrics
const (
	batchCompleted = "completed"
	batchQuota     = "quota"
	batchCancelled = "cancelled"
)

// coordinator runs one as-of date on the shared pool: a feeder goroutine submits
// iterations while the coordinator folds results until every submitted item is
// accounted for. It is the only reader of the pool's result channel while a day runs.
type coordinator struct {
	pool     *workerpool.Pool
	planner  *planner.Planner
	token    *cancel.Token
	testMode bool
	logger   *logger.Logger
	metrics  *metrics.Registry
}

// RunDay implements daywalker.BatchRunner
func (c *coordinator) RunDay(ctx context.Context, req *contracts.ScanRequest, asOf time.Time) (daywalker.DayResult, error) {
	batch, err := c.planner.Plan(req.Universe, asOf, req)
	if err != nil {
		return daywalker.DayResult{}, err
	}

	agg := aggregate.New(asOf, req.Orientation)
	day := daywalker.DayResult{AsOf: asOf}

	// Feeder: materialize iterations lazily so an abandon or cancel stops WorkItem creation
	fed := make(chan int, 1)
	go func() {
		total := 0
		for {
			items, ok := batch.Next(c.token)
			if !ok {
				break
			}
			n, err := c.pool.Submit(ctx, batch, items)
			total += n
			if err != nil {
				if !errors.Is(err, workerpool.ErrPoolTerminated) {
					c.logger.WithError(err).WithField("batch", batch.ID).Warn("Submit interrupted")
				}
				break
			}
			if n < len(items) {
				break
			}
		}
		fed <- total
	}()

	submitted := -1
	completions := 0
	stopped := false
	cancelled := false
	results := c.pool.Results()

loop:
	for submitted < 0 || completions < submitted {
		select {
		case r, ok := <-results:
			if !ok {
				cancelled = true
				break loop
			}
			if r.BatchID() != batch.ID {
				continue
			}
			completions++
			if stopped {
				continue
			}
			if agg.Fold(r) && aggregate.ShouldStop(agg.Matched(), req.Quota, c.testMode) {
				stopped = true
				batch.Abandon()
			}
		case n := <-fed:
			submitted = n
			fed = nil
		case <-c.token.Done():
			cancelled = true
			break loop
		}
	}

	// Feeder returns promptly once the token is set or the batch is abandoned
	if submitted < 0 {
		submitted = <-fed
	}

	day.Display, day.Persist, day.Ledger = agg.Finalize()
	day.Stats = agg.Stats()
	day.QuotaReached = stopped
	day.Completed = !cancelled

	status := batchCompleted
	switch {
	case cancelled:
		status = batchCancelled
	case stopped:
		status = batchQuota
	}
	c.metrics.RecordBatch(status)

	c.logger.WithFields(map[string]interface{}{
		"batch":      batch.ID,
		"as_of":      asOf.Format("2006-01-02"),
		"status":     status,
		"submitted":  submitted,
		"consumed":   completions,
		"matched":    agg.Matched(),
		"skipped":    day.Stats.Skipped,
		"iterations": batch.Iterations(),
	}).Info("Batch finished")

	return day, nil
}
