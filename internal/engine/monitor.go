package engine

import (
	"context"
	"errors"

	"github.com/wonny/scanengine/internal/contracts"
)

// MonitorCycle runs one live scan for the latest trading day on the kept pool.
// The pool is started by the first cycle; later cycles only refresh its universe data.
func (p *Pipeline) MonitorCycle(ctx context.Context, req contracts.ScanRequest) (*ScanResult, error) {
	req.SampleWindow = 0
	req.AsOf = p.now()

	res, _, err := p.RunScan(ctx, req, nil)
	return res, err
}

// Monitor runs cycles back to back (at least one); the scheduler spaces cycles in time.
// It stops without error when the pipeline is cancelled.
func (p *Pipeline) Monitor(ctx context.Context, req contracts.ScanRequest, cycles int) ([]*ScanResult, error) {
	if cycles <= 0 {
		cycles = 1
	}

	var out []*ScanResult
	for i := 0; i < cycles; i++ {
		res, err := p.MonitorCycle(ctx, req)
		if err != nil {
			if errors.Is(err, ErrPipelineCancelled) {
				return out, nil
			}
			return out, err
		}
		out = append(out, res)
		if res.Incomplete {
			return out, nil
		}
	}
	return out, nil
}
