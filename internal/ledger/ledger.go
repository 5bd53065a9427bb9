package ledger

import (
	"sort"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
)

// Ledger accumulates backtest rows across as-of dates.
// Append-only; owned by the day walker and mutated only through Merge.
type Ledger struct {
	rows []contracts.LedgerRow
	days map[time.Time]struct{}
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{days: make(map[time.Time]struct{})}
}

// Merge appends one day's rows. A day with no matches still counts as covered.
func (l *Ledger) Merge(date time.Time, rows []contracts.LedgerRow) {
	l.days[dayKey(date)] = struct{}{}
	l.rows = append(l.rows, rows...)
}

// Len is the number of rows merged
func (l *Ledger) Len() int { return len(l.rows) }

// Days lists the covered dates, newest first
func (l *Ledger) Days() []time.Time {
	out := make([]time.Time, 0, len(l.days))
	for d := range l.days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out
}

// Finalize returns the rows sorted by as-of date descending, then instrument ascending
func (l *Ledger) Finalize() []contracts.LedgerRow {
	out := make([]contracts.LedgerRow, len(l.rows))
	copy(out, l.rows)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AsOf.Equal(out[j].AsOf) {
			return out[i].AsOf.After(out[j].AsOf)
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

// HorizonStats scores one forward horizon
type HorizonStats struct {
	Horizon    int     `json:"horizon"`
	Samples    int     `json:"samples"`
	Hits       int     `json:"hits"`
	HitRate    float64 `json:"hit_rate"`
	MeanReturn float64 `json:"mean_return"`
}

// Summary is the criterion's historical score
type Summary struct {
	Days     int            `json:"days"`
	Rows     int            `json:"rows"`
	Horizons []HorizonStats `json:"horizons"`
}

// Summary computes hit rate and mean return per horizon.
// Horizons without any sample are reported with zero samples.
func (l *Ledger) Summary() Summary {
	s := Summary{
		Days:     len(l.days),
		Rows:     len(l.rows),
		Horizons: make([]HorizonStats, 0, len(contracts.Horizons)),
	}

	for _, h := range contracts.Horizons {
		hs := HorizonStats{Horizon: h}
		sum := 0.0
		for _, row := range l.rows {
			ret, ok := row.Returns[h]
			if !ok {
				continue
			}
			hs.Samples++
			sum += ret
			if row.Hits[h] {
				hs.Hits++
			}
		}
		if hs.Samples > 0 {
			hs.HitRate = float64(hs.Hits) / float64(hs.Samples)
			hs.MeanReturn = sum / float64(hs.Samples)
		}
		s.Horizons = append(s.Horizons, hs)
	}

	return s
}

func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
