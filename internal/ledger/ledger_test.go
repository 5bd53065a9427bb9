package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/internal/contracts"
)

func day(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

func row(id string, asOf time.Time, returns map[int]float64) contracts.LedgerRow {
	return contracts.NewLedgerRow(contracts.BacktestSample{
		Instrument:  id,
		AsOf:        asOf,
		Orientation: contracts.OrientationBuy,
		Returns:     returns,
	})
}

func TestLedger_FinalizeOrder(t *testing.T) {
	l := New()
	l.Merge(day(4), []contracts.LedgerRow{row("B", day(4), nil), row("A", day(4), nil)})
	l.Merge(day(6), []contracts.LedgerRow{row("C", day(6), nil)})
	l.Merge(day(5), nil)

	rows := l.Finalize()
	require.Len(t, rows, 3)
	assert.Equal(t, "C", rows[0].Instrument)
	assert.Equal(t, "A", rows[1].Instrument)
	assert.Equal(t, "B", rows[2].Instrument)

	assert.Equal(t, []time.Time{day(6), day(5), day(4)}, l.Days())
}

func TestLedger_Summary(t *testing.T) {
	l := New()
	l.Merge(day(5), []contracts.LedgerRow{
		row("A", day(5), map[int]float64{1: 2, 5: -1}),
		row("B", day(5), map[int]float64{1: -4}),
		row("C", day(5), map[int]float64{1: 5}),
	})

	s := l.Summary()
	assert.Equal(t, 1, s.Days)
	assert.Equal(t, 3, s.Rows)
	require.Len(t, s.Horizons, len(contracts.Horizons))

	h1 := s.Horizons[0]
	assert.Equal(t, 1, h1.Horizon)
	assert.Equal(t, 3, h1.Samples)
	assert.Equal(t, 2, h1.Hits)
	assert.InDelta(t, 2.0/3.0, h1.HitRate, 1e-9)
	assert.InDelta(t, 1.0, h1.MeanReturn, 1e-9)

	h5 := s.Horizons[4]
	assert.Equal(t, 5, h5.Horizon)
	assert.Equal(t, 1, h5.Samples)
	assert.Zero(t, h5.Hits)

	h30 := s.Horizons[len(s.Horizons)-1]
	assert.Zero(t, h30.Samples)
	assert.Zero(t, h30.HitRate)
}
