package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoData means the series provider has nothing usable for an instrument/date
	ErrNoData = errors.New("no data")
	// ErrDuplicateInstrument is returned when a universe repeats an instrument id
	ErrDuplicateInstrument = errors.New("duplicate instrument in universe")
	// ErrInvalidRequest wraps every ScanRequest validation failure
	ErrInvalidRequest = errors.New("invalid scan request")
)

// Family names a criterion family; each family maps to one Evaluator
type Family string

const (
	FamilyMomentum    Family = "momentum"
	FamilyBreakout    Family = "breakout"
	FamilyVolumeSurge Family = "volume_surge"
)

// Orientation decides which return direction counts as a hit in the ledger
type Orientation string

const (
	OrientationBuy  Orientation = "buy"
	OrientationSell Orientation = "sell"
)

// IsValid checks the orientation is one of buy/sell
func (o Orientation) IsValid() bool {
	return o == OrientationBuy || o == OrientationSell
}

// Hit reports whether a forward return counts as a hit for this orientation.
// A flat return is never a hit.
func (o Orientation) Hit(returnPct float64) bool {
	if o == OrientationSell {
		return returnPct < 0
	}
	return returnPct > 0
}

// Horizons are the forward-return horizons in trading days, in ledger column order
var Horizons = []int{1, 2, 3, 4, 5, 10, 15, 22, 30}

// MaxHorizon is the longest forward horizon; loaders fetch this many bars past the last as-of date
func MaxHorizon() int {
	return Horizons[len(Horizons)-1]
}

// Params is the criterion parameter bag, validated upstream
type Params map[string]float64

// Get returns a parameter or its default
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// ScanRequest is one screening job. Immutable once handed to the engine;
// the engine works on a Clone.
type ScanRequest struct {
	Family       Family      `json:"family"`
	Params       Params      `json:"params,omitempty"`
	Universe     []string    `json:"universe"`
	Exchange     string      `json:"exchange"`
	AsOf         time.Time   `json:"as_of"`
	SampleWindow int         `json:"sample_window"` // 0 = single current-day scan
	Quota        int         `json:"quota"`         // <= 0 = unlimited
	Orientation  Orientation `json:"orientation"`
	Lookback     int         `json:"lookback"` // bars of history handed to the evaluator
}

// Clone deep-copies the mutable parts of the request
func (r ScanRequest) Clone() ScanRequest {
	out := r
	out.Universe = append([]string(nil), r.Universe...)
	if r.Params != nil {
		out.Params = make(Params, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Validate checks the fields the engine relies on
func (r *ScanRequest) Validate() error {
	if r.Family == "" {
		return fmt.Errorf("%w: family is required", ErrInvalidRequest)
	}
	if !r.Orientation.IsValid() {
		return fmt.Errorf("%w: orientation must be buy or sell, got %q", ErrInvalidRequest, r.Orientation)
	}
	if r.SampleWindow < 0 {
		return fmt.Errorf("%w: sample window must be >= 0", ErrInvalidRequest)
	}
	if r.Lookback <= 0 {
		return fmt.Errorf("%w: lookback must be positive", ErrInvalidRequest)
	}
	if r.AsOf.IsZero() {
		return fmt.Errorf("%w: as-of date is required", ErrInvalidRequest)
	}
	return nil
}

// WorkItem is one (instrument, as-of date) evaluation
type WorkItem struct {
	Instrument string
	AsOf       time.Time
	Request    *ScanRequest
	Batch      uint64
}

// ScanRecord is produced by a matching WorkItem
type ScanRecord struct {
	Instrument string             `json:"instrument"`
	AsOf       time.Time          `json:"as_of"`
	Display    map[string]string  `json:"display"`
	Persist    map[string]float64 `json:"persist"`
}

// BacktestSample holds forward returns (pct) keyed by horizon in trading days.
// Horizons without enough forward bars are absent.
type BacktestSample struct {
	Instrument  string          `json:"instrument"`
	AsOf        time.Time       `json:"as_of"`
	Orientation Orientation     `json:"orientation"`
	Returns     map[int]float64 `json:"returns"`
}

// OutcomeKind classifies an evaluation
type OutcomeKind int

const (
	OutcomeNoMatch OutcomeKind = iota
	OutcomeNoData
	OutcomeMatch
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeNoData:
		return "no_data"
	case OutcomeMatch:
		return "match"
	default:
		return "unknown"
	}
}

// Outcome is what an Evaluator returns. Record is set only on Match;
// Sample only on Match when forward bars exist.
type Outcome struct {
	Kind   OutcomeKind
	Record *ScanRecord
	Sample *BacktestSample
}

// NoMatch is the zero-value outcome
func NoMatch() Outcome { return Outcome{Kind: OutcomeNoMatch} }

// NoData reports insufficient series data
func NoData() Outcome { return Outcome{Kind: OutcomeNoData} }

// Match builds a matching outcome
func Match(record *ScanRecord, sample *BacktestSample) Outcome {
	return Outcome{Kind: OutcomeMatch, Record: record, Sample: sample}
}
