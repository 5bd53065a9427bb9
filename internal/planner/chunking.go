package planner

import "github.com/wonny/scanengine/pkg/config"

// Config carries the chunking heuristic constants
type Config struct {
	SingleIterationMax int // universes up to this size run as one iteration
	IdealPerIteration  int
	MaxPerIteration    int
	MinPerIteration    int
	PriorIterations    int
}

// DefaultConfig returns the stock heuristic: 2500 / 100 / 500 / 10 / 1
func DefaultConfig() Config {
	return ConfigFrom(config.Default().Scan)
}

// ConfigFrom extracts the planner constants from the scan config
func ConfigFrom(s config.ScanConfig) Config {
	return Config{
		SingleIterationMax: s.SingleIterationMax,
		IdealPerIteration:  s.IdealPerIteration,
		MaxPerIteration:    s.MaxPerIteration,
		MinPerIteration:    s.MinPerIteration,
		PriorIterations:    s.PriorIterations,
	}
}

// Chunking sizes the iterations of a universe of n instruments.
// It returns the heuristic iteration estimate and the iteration size; the Batch
// derives the real iteration count from the size and folds the remainder into
// the last iteration, so the estimate may exceed the real count by one.
func (c Config) Chunking(n int) (iterations, perIteration int) {
	if n <= 0 {
		return 0, 0
	}
	if n <= c.SingleIterationMax {
		return 1, n
	}

	prior := c.PriorIterations
	if prior < 1 {
		prior = 1
	}

	iterations = n*prior/c.IdealPerIteration + 1
	perIteration = n / iterations

	if perIteration < c.MinPerIteration {
		iterations = prior
		if iterations == 1 {
			perIteration = n
		} else {
			perIteration = n / iterations
		}
		if floor := min(c.MinPerIteration, n); perIteration < floor {
			perIteration = floor
		}
	}

	if perIteration > c.MaxPerIteration {
		perIteration = c.MaxPerIteration
		iterations = n/perIteration + 1
	}

	return iterations, perIteration
}
