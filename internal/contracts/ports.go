package contracts

import (
	"context"
	"time"
)

// Evaluator decides whether one instrument matches a criterion.
// Implementations must be pure: the pool calls them concurrently without locking.
type Evaluator interface {
	Evaluate(series Series, params Params) Outcome
}

// EvaluatorFunc adapts a plain function to Evaluator
type EvaluatorFunc func(series Series, params Params) Outcome

// Evaluate calls f
func (f EvaluatorFunc) Evaluate(series Series, params Params) Outcome { return f(series, params) }

// SeriesProvider supplies one instrument's series for an as-of date.
// It returns ErrNoData (possibly wrapped) when nothing usable exists.
type SeriesProvider interface {
	Fetch(ctx context.Context, instrument string, asOf time.Time, lookback int) (Series, error)
}

// DayCache stores completed backtest days keyed by (criterion signature, as-of date).
// Get returns found=false on a miss; a non-nil error means the entry exists but is unreadable.
type DayCache interface {
	Get(ctx context.Context, signature string, date time.Time) ([]LedgerRow, bool, error)
	Put(ctx context.Context, signature string, date time.Time, rows []LedgerRow) error
}
