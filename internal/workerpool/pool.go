package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/scanengine/internal/cancel"
	"github.com/wonny/scanengine/internal/contracts"
	"github.com/wonny/scanengine/internal/metrics"
	"github.com/wonny/scanengine/pkg/logger"
)

var (
	// ErrNoWorkers is the only fatal pool error: the pool could not start a single worker
	ErrNoWorkers = errors.New("worker pool: no workers")
	// ErrPoolTerminated is returned by Submit once Terminate has begun
	ErrPoolTerminated = errors.New("worker pool: terminated")
	// ErrUnsupportedFamily is reported per item when no evaluator is registered for the family
	ErrUnsupportedFamily = errors.New("worker pool: unsupported criterion family")
	// ErrTerminateTimeout means workers did not join within the terminate timeout
	ErrTerminateTimeout = errors.New("worker pool: terminate timed out")
)

// State is the pool lifecycle state
type State int32

const (
	StateRunning State = iota
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options configures a pool
type Options struct {
	Size       int
	QueueSize  int // task channel capacity, raised to Size when smaller
	Data       contracts.SeriesProvider
	Token      *cancel.Token
	Evaluators map[contracts.Family]contracts.Evaluator
	Logger     *logger.Logger
	Metrics    *metrics.Registry
}

type dataRef struct {
	provider contracts.SeriesProvider
}

// Pool is a fixed set of evaluator goroutines sharing one task queue and one result channel.
// It is started once per pipeline run and terminated exactly once.
// ⭐ SSOT: 병렬 평가는 이 풀에서만
type Pool struct {
	size       int
	tasks      chan task
	results    chan Result
	evaluators map[contracts.Family]contracts.Evaluator
	data       atomic.Pointer[dataRef]
	token      *cancel.Token
	ctx        context.Context
	cancelCtx  context.CancelFunc
	logger     *logger.Logger
	metrics    *metrics.Registry

	wg      sync.WaitGroup
	exited  chan struct{}
	closing chan struct{}

	submitMu sync.RWMutex
	state    atomic.Int32

	terminateOnce sync.Once
	terminateErr  error
	stopsSent     int

	refreshes atomic.Uint64
	processed atomic.Uint64
}

// Start launches Size workers. The pool owns no goroutine beyond its workers and
// the closer that shuts the result channel after they all exit.
func Start(opts Options) (*Pool, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrNoWorkers, opts.Size)
	}
	if opts.Data == nil {
		return nil, fmt.Errorf("worker pool: series provider is required")
	}
	if opts.Token == nil {
		opts.Token = cancel.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	queue := opts.QueueSize
	if queue < opts.Size {
		queue = opts.Size
	}

	ctx, cancelCtx := opts.Token.Context(context.Background())

	p := &Pool{
		size:       opts.Size,
		tasks:      make(chan task, queue),
		results:    make(chan Result, queue),
		evaluators: opts.Evaluators,
		token:      opts.Token,
		ctx:        ctx,
		cancelCtx:  cancelCtx,
		logger:     opts.Logger.WithField("module", "workerpool"),
		metrics:    opts.Metrics,
		exited:     make(chan struct{}),
		closing:    make(chan struct{}),
	}
	p.data.Store(&dataRef{provider: opts.Data})

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		p.metrics.WorkerUp()
		go func(workerID int) {
			defer p.wg.Done()
			defer p.metrics.WorkerDown()
			p.worker(workerID)
		}(i)
	}

	// Close result channel once every worker has exited
	go func() {
		p.wg.Wait()
		close(p.exited)
		close(p.results)
	}()

	p.metrics.RecordPoolStart()
	p.logger.WithFields(map[string]interface{}{
		"workers": p.size,
		"queue":   queue,
	}).Info("Worker pool started")

	return p, nil
}

// Size is the number of workers
func (p *Pool) Size() int { return p.size }

// State returns the lifecycle state
func (p *Pool) State() State { return State(p.state.Load()) }

// Token is the cancellation token the workers observe
func (p *Pool) Token() *cancel.Token { return p.token }

// Results delivers one Result per submitted item, in completion order.
// It is closed after all workers have exited.
func (p *Pool) Results() <-chan Result { return p.results }

// Supports reports whether an evaluator is registered for the family
func (p *Pool) Supports(family contracts.Family) bool {
	_, ok := p.evaluators[family]
	return ok
}

// Refreshes counts RefreshUniverseData calls
func (p *Pool) Refreshes() uint64 { return p.refreshes.Load() }

// Processed counts items that produced a Result
func (p *Pool) Processed() uint64 { return p.processed.Load() }

// Submit enqueues items in order and blocks while the queue is full.
// It returns the number enqueued; it stops early without error when the token is set,
// and with ErrPoolTerminated once Terminate has begun.
func (p *Pool) Submit(ctx context.Context, gate Gate, items []contracts.WorkItem) (int, error) {
	n := 0
	for _, item := range items {
		ok, err := p.submitOne(ctx, task{item: item, gate: gate})
		if !ok {
			return n, err
		}
		n++
	}
	return n, nil
}

func (p *Pool) submitOne(ctx context.Context, t task) (bool, error) {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	select {
	case <-p.closing:
		return false, ErrPoolTerminated
	case <-p.token.Done():
		return false, nil
	default:
	}

	select {
	case p.tasks <- t:
		return true, nil
	case <-p.closing:
		return false, ErrPoolTerminated
	case <-p.token.Done():
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RefreshUniverseData swaps the series provider workers read from.
// Items already being evaluated finish against the previous data.
func (p *Pool) RefreshUniverseData(provider contracts.SeriesProvider) {
	if provider == nil {
		return
	}
	p.data.Store(&dataRef{provider: provider})
	n := p.refreshes.Add(1)
	p.logger.WithField("refresh", n).Info("Universe data refreshed")
}

// Terminate discards queued items, enqueues exactly one STOP per worker and joins
// the workers, draining results meanwhile. After timeout the pool is abandoned and
// ErrTerminateTimeout returned. Safe to call more than once; later calls return the
// first call's error.
func (p *Pool) Terminate(timeout time.Duration) error {
	p.terminateOnce.Do(func() {
		p.terminateErr = p.terminate(timeout)
	})
	return p.terminateErr
}

func (p *Pool) terminate(timeout time.Duration) error {
	p.state.Store(int32(StateTerminating))
	close(p.closing)

	// No Submit holds the read lock past this point, so the queue only shrinks
	p.submitMu.Lock()
	discarded := p.discardQueued()
	for i := 0; i < p.size; i++ {
		p.tasks <- task{stop: true}
		p.stopsSent++
	}
	p.submitMu.Unlock()

	stopDrain := make(chan struct{})
	defer close(stopDrain)
	go p.drain(stopDrain)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.exited:
		p.cancelCtx()
		p.state.Store(int32(StateTerminated))
		p.logger.WithFields(map[string]interface{}{
			"discarded": discarded,
			"processed": p.processed.Load(),
		}).Info("Worker pool terminated")
		return nil
	case <-timer.C:
		p.cancelCtx()
		p.state.Store(int32(StateTerminated))
		p.metrics.RecordTerminateTimeout()
		p.logger.WithFields(map[string]interface{}{
			"timeout":   timeout.String(),
			"discarded": discarded,
		}).Warn("Worker pool did not join in time, abandoning workers")
		return ErrTerminateTimeout
	}
}

// drain discards results until the channel closes or stop is closed
func (p *Pool) drain(stop <-chan struct{}) {
	for {
		select {
		case _, ok := <-p.results:
			if !ok {
				return
			}
		case <-stop:
			return
		}
	}
}

// discardQueued empties the task channel without evaluating anything
func (p *Pool) discardQueued() int {
	n := 0
	for {
		select {
		case <-p.tasks:
			n++
		default:
			return n
		}
	}
}

// StopsSent is the number of STOP sentinels enqueued by Terminate
func (p *Pool) StopsSent() int {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	return p.stopsSent
}
