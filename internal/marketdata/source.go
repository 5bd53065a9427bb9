package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/logger"
)

// Source loads daily bars for many instruments over a date range
type Source interface {
	Load(ctx context.Context, instruments []string, from, to time.Time) (map[string][]contracts.Bar, error)
}

// Window returns the calendar range a snapshot must cover: lookback bars before the
// oldest sampled day and the longest forward horizon after the newest.
// Calendar days are padded 7/5 for weekends plus a holiday margin.
func Window(newest time.Time, lookback, sampleWindow int) (from, to time.Time) {
	back := (lookback+sampleWindow)*7/5 + 10
	fwd := contracts.MaxHorizon()*7/5 + 10
	return newest.AddDate(0, 0, -back), newest.AddDate(0, 0, fwd)
}

// BuildSnapshot loads the universe for a request and wraps it in a Snapshot.
// Instruments the source has nothing for are simply absent (NoData at evaluation).
func BuildSnapshot(ctx context.Context, src Source, req *contracts.ScanRequest, log *logger.Logger) (*Snapshot, error) {
	from, to := Window(req.AsOf, req.Lookback, req.SampleWindow)

	start := time.Now()
	bars, err := src.Load(ctx, req.Universe, from, to)
	if err != nil {
		return nil, fmt.Errorf("load universe data: %w", err)
	}

	snap := NewSnapshot(bars)
	log.WithFields(map[string]interface{}{
		"module":      "marketdata",
		"requested":   len(req.Universe),
		"instruments": snap.Instruments(),
		"from":        from.Format("2006-01-02"),
		"to":          to.Format("2006-01-02"),
		"duration":    time.Since(start).String(),
	}).Info("Universe data loaded")

	return snap, nil
}
