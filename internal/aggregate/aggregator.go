package aggregate

import (
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/workerpool"
)

// Stats counts folded results by status
type Stats struct {
	Match     int `json:"match"`
	Duplicate int `json:"duplicate"`
	NoMatch   int `json:"no_match"`
	NoData    int `json:"no_data"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Panicked  int `json:"panicked"`
}

// Total is the number of results folded
func (s Stats) Total() int {
	return s.Match + s.Duplicate + s.NoMatch + s.NoData + s.Skipped + s.Failed
}

// Aggregator folds one day's results into display/persist tables and ledger rows.
// Rows keep arrival order; a repeated instrument keeps its first row, which makes the
// fold insensitive to completion order. Not safe for concurrent use: only the
// coordinator folds.
type Aggregator struct {
	asOf        time.Time
	orientation contracts.Orientation

	display contracts.DisplayTable
	persist contracts.PersistTable
	ledger  []contracts.LedgerRow
	seen    map[string]struct{}

	stats Stats
}

// New creates an aggregator for one as-of date; orientation is fixed for the whole batch
func New(asOf time.Time, orientation contracts.Orientation) *Aggregator {
	return &Aggregator{
		asOf:        asOf,
		orientation: orientation,
		seen:        make(map[string]struct{}),
	}
}

// Fold accounts for one result. It returns true when the result added a new match.
func (a *Aggregator) Fold(r workerpool.Result) bool {
	if r.Panicked {
		a.stats.Panicked++
	}

	switch r.Status {
	case workerpool.StatusMatch:
	case workerpool.StatusNoData:
		a.stats.NoData++
		return false
	case workerpool.StatusSkipped:
		a.stats.Skipped++
		return false
	case workerpool.StatusFailed:
		a.stats.Failed++
		return false
	default:
		a.stats.NoMatch++
		return false
	}

	id := r.Item.Instrument
	if _, dup := a.seen[id]; dup {
		a.stats.Duplicate++
		return false
	}
	a.seen[id] = struct{}{}
	a.stats.Match++

	asOf := r.Item.AsOf
	var display map[string]string
	var persist map[string]float64
	if rec := r.Outcome.Record; rec != nil {
		display = rec.Display
		persist = rec.Persist
	}

	a.display = append(a.display, contracts.DisplayRow{Instrument: id, AsOf: asOf, Fields: display})
	a.persist = append(a.persist, contracts.PersistRow{Instrument: id, AsOf: asOf, Values: persist})

	if s := r.Outcome.Sample; s != nil {
		sample := *s
		sample.Instrument = id
		sample.AsOf = asOf
		sample.Orientation = a.orientation
		a.ledger = append(a.ledger, contracts.NewLedgerRow(sample))
	}

	return true
}

// Matched is the number of distinct matching instruments folded so far
func (a *Aggregator) Matched() int { return a.stats.Match }

// Stats returns the fold counters
func (a *Aggregator) Stats() Stats { return a.stats }

// AsOf is the date this aggregator folds
func (a *Aggregator) AsOf() time.Time { return a.asOf }

// Finalize returns the tables and the day's ledger rows. The aggregator stays usable.
func (a *Aggregator) Finalize() (contracts.DisplayTable, contracts.PersistTable, []contracts.LedgerRow) {
	display := make(contracts.DisplayTable, len(a.display))
	copy(display, a.display)
	persist := make(contracts.PersistTable, len(a.persist))
	copy(persist, a.persist)
	ledger := make([]contracts.LedgerRow, len(a.ledger))
	copy(ledger, a.ledger)
	return display, persist, ledger
}
