package workerpool

import "github.com/wonny/scanengine/internal/contracts"

// Status classifies what happened to one submitted WorkItem.
// Every submitted item yields exactly one Result.
type Status int

const (
	StatusNoMatch Status = iota
	StatusMatch
	StatusNoData
	StatusSkipped // batch abandoned or pool closing before evaluation
	StatusFailed  // series fetch error or unsupported family
)

func (s Status) String() string {
	switch s {
	case StatusNoMatch:
		return "no_match"
	case StatusMatch:
		return "match"
	case StatusNoData:
		return "no_data"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is a worker's report for one WorkItem
type Result struct {
	Item     contracts.WorkItem
	Status   Status
	Outcome  contracts.Outcome
	Err      error
	Panicked bool
}

// BatchID is the batch the item belongs to
func (r Result) BatchID() uint64 { return r.Item.Batch }

// Matched reports whether the item matched the criterion
func (r Result) Matched() bool { return r.Status == StatusMatch }

// Gate tells workers whether an item's batch was abandoned.
// *planner.Batch satisfies it.
type Gate interface {
	Abandoned() bool
}

type task struct {
	item contracts.WorkItem
	gate Gate
	stop bool
}
