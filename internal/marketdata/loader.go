package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/pkg/logger"
)

// FetchFunc fetches one instrument's bars
type FetchFunc func(ctx context.Context, instrument string, from, to time.Time) ([]contracts.Bar, error)

// Loader is a Source over a per-instrument fetcher (e.g. the Naver chart API).
// It fans instruments out to a fixed worker set; a failed instrument is logged and
// left out rather than failing the load.
type Loader struct {
	fetch   FetchFunc
	workers int
	logger  *logger.Logger
}

// NewLoader creates a loader with the given concurrency
func NewLoader(fetch FetchFunc, workers int, log *logger.Logger) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		fetch:   fetch,
		workers: workers,
		logger:  log.WithField("module", "loader"),
	}
}

type loadResult struct {
	instrument string
	bars       []contracts.Bar
	err        error
}

// Load implements Source
func (l *Loader) Load(ctx context.Context, instruments []string, from, to time.Time) (map[string][]contracts.Bar, error) {
	resultCh := make(chan loadResult, len(instruments))
	idCh := make(chan string, len(instruments))

	var wg sync.WaitGroup
	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			l.worker(ctx, workerID, idCh, resultCh, from, to)
		}(i)
	}

	for _, id := range instruments {
		idCh <- id
	}
	close(idCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[string][]contracts.Bar, len(instruments))
	failed := 0
	for r := range resultCh {
		if r.err != nil {
			failed++
			continue
		}
		if len(r.bars) > 0 {
			out[r.instrument] = r.bars
		}
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}

	l.logger.WithFields(map[string]interface{}{
		"loaded": len(out),
		"failed": failed,
		"total":  len(instruments),
	}).Info("Series load completed")

	return out, nil
}

func (l *Loader) worker(ctx context.Context, workerID int, idCh <-chan string, resultCh chan<- loadResult, from, to time.Time) {
	for id := range idCh {
		select {
		case <-ctx.Done():
			resultCh <- loadResult{instrument: id, err: ctx.Err()}
			continue
		default:
		}

		bars, err := l.fetch(ctx, id, from, to)
		if err != nil {
			l.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":     workerID,
				"instrument": id,
			}).Warn("Failed to fetch series")
			resultCh <- loadResult{instrument: id, err: err}
			continue
		}

		resultCh <- loadResult{instrument: id, bars: bars}
	}
}
