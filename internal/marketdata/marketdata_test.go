package marketdata

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/config"
	"github.com/wonny/scanengine/pkg/database"
	"github.com/wonny/scanengine/pkg/logger"
)

func day(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

func bars(days ...int) []contracts.Bar {
	out := make([]contracts.Bar, len(days))
	for i, d := range days {
		out[i] = contracts.Bar{Date: day(d), Close: float64(d)}
	}
	return out
}

func TestSnapshot_Fetch(t *testing.T) {
	// unsorted on purpose
	snap := NewSnapshot(map[string][]contracts.Bar{"A": bars(5, 2, 3, 4, 6, 9, 10)})
	ctx := context.Background()

	tests := []struct {
		name        string
		asOf        time.Time
		lookback    int
		wantBars    []float64
		wantForward []float64
	}{
		{name: "exact day", asOf: day(5), lookback: 3, wantBars: []float64{3, 4, 5}, wantForward: []float64{6, 9, 10}},
		{name: "weekend falls back", asOf: day(8), lookback: 2, wantBars: []float64{5, 6}, wantForward: []float64{9, 10}},
		{name: "lookback longer than history", asOf: day(3), lookback: 50, wantBars: []float64{2, 3}, wantForward: []float64{4, 5, 6, 9, 10}},
		{name: "intraday as-of", asOf: day(10).Add(15 * time.Hour), lookback: 1, wantBars: []float64{10}, wantForward: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := snap.Fetch(ctx, "A", tt.asOf, tt.lookback)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBars, s.Closes())

			var fwd []float64
			for _, b := range s.Forward {
				fwd = append(fwd, b.Close)
			}
			assert.Equal(t, tt.wantForward, fwd)
		})
	}
}

func TestSnapshot_FetchNoData(t *testing.T) {
	snap := NewSnapshot(map[string][]contracts.Bar{"A": bars(5, 6)})

	_, err := snap.Fetch(context.Background(), "MISSING", day(5), 10)
	assert.True(t, errors.Is(err, contracts.ErrNoData))

	_, err = snap.Fetch(context.Background(), "A", day(4), 10)
	assert.True(t, errors.Is(err, contracts.ErrNoData))
}

func TestSnapshot_ForwardCappedAtMaxHorizon(t *testing.T) {
	long := make([]contracts.Bar, 100)
	for i := range long {
		long[i] = contracts.Bar{Date: day(1).AddDate(0, 0, i), Close: float64(i)}
	}
	snap := NewSnapshot(map[string][]contracts.Bar{"A": long})

	s, err := snap.Fetch(context.Background(), "A", day(1), 1)
	require.NoError(t, err)
	assert.Len(t, s.Forward, contracts.MaxHorizon())
}

func TestLoader_SkipsFailures(t *testing.T) {
	var calls atomic.Int32
	fetch := func(_ context.Context, id string, _, _ time.Time) ([]contracts.Bar, error) {
		calls.Add(1)
		switch id {
		case "BAD":
			return nil, errors.New("timeout")
		case "EMPTY":
			return nil, nil
		}
		return bars(5), nil
	}

	l := NewLoader(fetch, 3, logger.Nop())
	got, err := l.Load(context.Background(), []string{"A", "B", "BAD", "EMPTY"}, day(1), day(9))
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Contains(t, got, "A")
	assert.Contains(t, got, "B")
	assert.EqualValues(t, 4, calls.Load())
}

func TestLoader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(func(context.Context, string, time.Time, time.Time) ([]contracts.Bar, error) {
		return bars(5), nil
	}, 2, logger.Nop())

	_, err := l.Load(ctx, []string{"A", "B"}, day(1), day(9))
	assert.ErrorIs(t, err, context.Canceled)
}

type staticSource map[string][]contracts.Bar

func (s staticSource) Load(_ context.Context, ids []string, _, _ time.Time) (map[string][]contracts.Bar, error) {
	out := make(map[string][]contracts.Bar)
	for _, id := range ids {
		if b, ok := s[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func TestBuildSnapshot(t *testing.T) {
	req := &contracts.ScanRequest{Universe: []string{"A", "B"}, AsOf: day(6), Lookback: 20}
	snap, err := BuildSnapshot(context.Background(), staticSource{"A": bars(5, 6)}, req, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Instruments())
}

func TestWindow(t *testing.T) {
	from, to := Window(day(6), 20, 10)
	assert.True(t, from.Before(day(6).AddDate(0, 0, -30)))
	assert.True(t, to.After(day(6).AddDate(0, 0, contracts.MaxHorizon())))
}

func TestPostgresSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := config.Default()
	cfg.Database.URL = url
	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	src := NewPostgresSource(db.Pool)
	_, err = src.Load(context.Background(), []string{"005930"}, day(1), day(31))
	require.NoError(t, err)
}
