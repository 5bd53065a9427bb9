package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/scanengine/internal/universe"
	"github.com/wonny/scanengine/pkg/logger"
)

// UniverseSink receives a freshly resolved universe
type UniverseSink interface {
	SetUniverse(ids []string)
}

// UniverseJob re-resolves the exchange listing before the session
type UniverseJob struct {
	resolver *universe.Resolver
	exchange string
	sink     UniverseSink
	logger   *logger.Logger
}

// NewUniverseJob creates a new universe job
func NewUniverseJob(resolver *universe.Resolver, exchange string, sink UniverseSink, log *logger.Logger) *UniverseJob {
	return &UniverseJob{
		resolver: resolver,
		exchange: exchange,
		sink:     sink,
		logger:   log.WithField("job", "universe_refresh"),
	}
}

// Name returns the job name
func (j *UniverseJob) Name() string {
	return "universe_refresh"
}

// Schedule returns the cron schedule (weekdays 08:30, before the open)
func (j *UniverseJob) Schedule() string {
	return "0 30 8 * * MON-FRI"
}

// Run executes the universe refresh
func (j *UniverseJob) Run(ctx context.Context) error {
	ids, err := j.resolver.Resolve(ctx, j.exchange, nil)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}

	j.sink.SetUniverse(ids)
	j.logger.WithFields(map[string]interface{}{
		"exchange": j.exchange,
		"count":    len(ids),
	}).Info("Universe refreshed")

	return nil
}
