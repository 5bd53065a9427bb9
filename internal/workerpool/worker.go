package workerpool

import (
	"errors"
	"fmt"

	"github.com/wonny/scanengine/internal/contracts"
)

// worker pops tasks until a STOP sentinel arrives or the token is set
func (p *Pool) worker(workerID int) {
	for {
		select {
		case t := <-p.tasks:
			if t.stop {
				return
			}
			p.emit(p.process(workerID, t))
			if p.token.Cancelled() {
				return
			}
		case <-p.token.Done():
			return
		}
	}
}

func (p *Pool) emit(r Result) {
	p.processed.Add(1)
	p.metrics.RecordItem(r.Status.String())

	select {
	case p.results <- r:
	case <-p.closing:
	}
}

func (p *Pool) isClosing() bool {
	select {
	case <-p.closing:
		return true
	default:
		return false
	}
}

// process evaluates one item. Per-item problems never escape: they become a Result.
func (p *Pool) process(workerID int, t task) Result {
	item := t.item
	res := Result{Item: item}

	if (t.gate != nil && t.gate.Abandoned()) || p.isClosing() {
		res.Status = StatusSkipped
		return res
	}

	req := item.Request
	if req == nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("work item %s has no request", item.Instrument)
		return res
	}

	evaluator, ok := p.evaluators[req.Family]
	if !ok {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s", ErrUnsupportedFamily, req.Family)
		return res
	}

	ref := p.data.Load()
	series, err := ref.provider.Fetch(p.ctx, item.Instrument, item.AsOf, req.Lookback)
	if err != nil {
		if errors.Is(err, contracts.ErrNoData) {
			p.logger.WithItem(item.Instrument, item.AsOf).Debug("No data, skipping")
			res.Status = StatusNoData
			res.Outcome = contracts.NoData()
			return res
		}
		p.logger.WithError(err).WithFields(map[string]interface{}{
			"worker":     workerID,
			"instrument": item.Instrument,
		}).Warn("Failed to fetch series")
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	out, panicked := p.evaluate(workerID, evaluator, item, series, req.Params)
	res.Outcome = out
	res.Panicked = panicked

	switch out.Kind {
	case contracts.OutcomeMatch:
		res.Status = StatusMatch
		stamp(&res.Outcome, item, req.Orientation)
	case contracts.OutcomeNoData:
		p.logger.WithItem(item.Instrument, item.AsOf).Debug("Evaluator reported no data")
		res.Status = StatusNoData
	default:
		res.Status = StatusNoMatch
	}

	return res
}

// evaluate calls the evaluator, turning a panic into NoMatch
func (p *Pool) evaluate(workerID int, ev contracts.Evaluator, item contracts.WorkItem, series contracts.Series, params contracts.Params) (out contracts.Outcome, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"worker":     workerID,
				"instrument": item.Instrument,
				"as_of":      item.AsOf.Format("2006-01-02"),
				"panic":      fmt.Sprint(r),
			}).Error("Evaluator panicked, treating as no match")
			out = contracts.NoMatch()
			panicked = true
		}
	}()

	return ev.Evaluate(series, params), false
}

// stamp fills identity fields evaluators may leave empty and applies the request orientation
func stamp(out *contracts.Outcome, item contracts.WorkItem, o contracts.Orientation) {
	if out.Record == nil {
		out.Record = &contracts.ScanRecord{}
	}
	if out.Record.Instrument == "" {
		out.Record.Instrument = item.Instrument
	}
	if out.Record.AsOf.IsZero() {
		out.Record.AsOf = item.AsOf
	}
	if out.Sample != nil {
		out.Sample.Instrument = item.Instrument
		out.Sample.AsOf = item.AsOf
		out.Sample.Orientation = o
	}
}
