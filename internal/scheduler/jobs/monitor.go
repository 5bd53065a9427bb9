package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/engine"
	"github.com/wonny/scanengine/pkg/logger"
)

// MonitorJob runs one live scan per tick on the pipeline's warm pool
// ⭐ SSOT: 장중 모니터링 스케줄은 이 Job에서만
type MonitorJob struct {
	pipeline *engine.Pipeline
	schedule string
	logger   *logger.Logger

	mu  sync.RWMutex
	req contracts.ScanRequest
}

// NewMonitorJob creates a new monitor job
func NewMonitorJob(p *engine.Pipeline, req contracts.ScanRequest, schedule string, log *logger.Logger) *MonitorJob {
	return &MonitorJob{
		pipeline: p,
		schedule: schedule,
		req:      req.Clone(),
		logger:   log.WithField("job", "scan_monitor"),
	}
}

// Name returns the job name
func (j *MonitorJob) Name() string {
	return "scan_monitor"
}

// Schedule returns the cron schedule (default every 5 minutes during the session)
func (j *MonitorJob) Schedule() string {
	return j.schedule
}

// SetUniverse replaces the instruments scanned from the next tick on
func (j *MonitorJob) SetUniverse(ids []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.req.Universe = append([]string(nil), ids...)
}

// Request returns a copy of the request scanned each tick
func (j *MonitorJob) Request() contracts.ScanRequest {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.req.Clone()
}

// Run executes one monitoring cycle. A cancelled or closed pipeline is not a failure.
func (j *MonitorJob) Run(ctx context.Context) error {
	res, err := j.pipeline.MonitorCycle(ctx, j.Request())
	if err != nil {
		if errors.Is(err, engine.ErrPipelineCancelled) || errors.Is(err, engine.ErrPipelineClosed) {
			j.logger.Debug("Pipeline stopped, skipping cycle")
			return nil
		}
		return fmt.Errorf("monitor cycle: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"matched":    len(res.Display),
		"incomplete": res.Incomplete,
		"duration":   res.Duration.String(),
	}).Info("Monitor cycle completed")

	return nil
}
