package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/scanengine/internal/calendar"
	"github.com/wonny/scanengine/internal/contracts"
)

// Snapshot is an immutable in-memory copy of the universe's daily bars.
// Workers read it concurrently; a refresh builds a new Snapshot and swaps the pool's
// reference instead of editing this one.
type Snapshot struct {
	bars     map[string][]contracts.Bar
	loadedAt time.Time
}

// NewSnapshot takes ownership of bars; each series is sorted ascending by date
func NewSnapshot(bars map[string][]contracts.Bar) *Snapshot {
	for _, series := range bars {
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	return &Snapshot{bars: bars, loadedAt: time.Now()}
}

// Instruments is the number of instruments with at least one bar
func (s *Snapshot) Instruments() int { return len(s.bars) }

// LoadedAt is when the snapshot was built
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Fetch implements contracts.SeriesProvider. Bars ends at the last bar on or before asOf
// and holds at most lookback bars; Forward holds up to the longest horizon of later bars.
func (s *Snapshot) Fetch(_ context.Context, instrument string, asOf time.Time, lookback int) (contracts.Series, error) {
	series, ok := s.bars[instrument]
	if !ok || len(series) == 0 {
		return contracts.Series{}, fmt.Errorf("%s: %w", instrument, contracts.ErrNoData)
	}

	day := calendar.Truncate(asOf)
	// first bar strictly after the as-of day
	end := sort.Search(len(series), func(i int) bool {
		return calendar.Truncate(series[i].Date).After(day)
	})
	if end == 0 {
		return contracts.Series{}, fmt.Errorf("%s before %s: %w", instrument, day.Format("2006-01-02"), contracts.ErrNoData)
	}

	start := 0
	if lookback > 0 && end-lookback > 0 {
		start = end - lookback
	}
	fwdEnd := end + contracts.MaxHorizon()
	if fwdEnd > len(series) {
		fwdEnd = len(series)
	}

	return contracts.Series{
		Instrument: instrument,
		AsOf:       day,
		Bars:       series[start:end:end],
		Forward:    series[end:fwdEnd:fwdEnd],
	}, nil
}
