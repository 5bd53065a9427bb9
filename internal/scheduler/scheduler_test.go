package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scanengine/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	fails    int32
	runs     atomic.Int32
	block    chan struct{}
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(ctx context.Context) error {
	n := j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= j.fails {
		return errors.New("transient")
	}
	return nil
}

func TestScheduler_AddRemove(t *testing.T) {
	s := New(logger.Nop())
	job := &countingJob{name: "a", schedule: "@every 1h"}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job))
	assert.Equal(t, []string{"a"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(logger.Nop())
	assert.Error(t, s.AddJob(&countingJob{name: "bad", schedule: "not a cron"}))
}

func TestScheduler_RunJobRetries(t *testing.T) {
	s := New(logger.Nop(), WithRetries(2, time.Millisecond))
	job := &countingJob{name: "flaky", schedule: "@every 1h", fails: 2}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob("flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	assert.Equal(t, 1, history.Len())
	assert.Equal(t, 1.0, history.SuccessRate())
}

func TestScheduler_RunJobFailure(t *testing.T) {
	s := New(logger.Nop())
	require.NoError(t, s.AddJob(&countingJob{name: "broken", schedule: "@every 1h", fails: 10}))

	res, err := s.RunJob("broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "transient", res.Error)

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, "transient", stats.LastError)

	_, err = s.RunJob("missing")
	assert.Error(t, err)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(logger.Nop())
	job := &countingJob{name: "slow", schedule: "* * * * * *", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	s.Start()
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	s.Stop()
}

func TestJobHistory_KeepsLast(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historySize+20; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Equal(t, historySize, h.Len())
	assert.Len(t, h.Latest(5), 5)
	assert.InDelta(t, 0.5, h.SuccessRate(), 0.01)
}
