package engine

import "time"

// Status is a point-in-time view of the pipeline for operators
type Status struct {
	RunID      string     `json:"run_id"`
	State      State      `json:"state"`
	Cancelled  bool       `json:"cancelled"`
	PoolStarts int        `json:"pool_starts"`
	PoolState  string     `json:"pool_state,omitempty"`
	PoolSize   int        `json:"pool_size,omitempty"`
	Processed  uint64     `json:"processed"`
	Refreshes  uint64     `json:"refreshes"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty"`
}

// Summary is the compact form of a ScanResult pushed to monitor clients
type Summary struct {
	RunID      string        `json:"run_id"`
	Stage      int           `json:"stage"`
	Family     string        `json:"family"`
	AsOf       string        `json:"as_of"`
	Matched    []string      `json:"matched"`
	Days       int           `json:"days"`
	Batches    int           `json:"batches"`
	CacheHits  int           `json:"cache_hits"`
	Incomplete bool          `json:"incomplete"`
	Duration   time.Duration `json:"duration"`
}

// Status reports the pipeline and pool state
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		RunID:      p.id,
		State:      p.state,
		Cancelled:  p.token.Cancelled(),
		PoolStarts: p.poolStarts,
	}
	if p.pool != nil {
		st.PoolState = p.pool.State().String()
		st.PoolSize = p.pool.Size()
		st.Processed = p.pool.Processed()
		st.Refreshes = p.pool.Refreshes()
	}
	if p.latest != nil {
		at := p.latest.StartedAt
		st.LastScanAt = &at
	}
	return st
}

// Summarize compacts a result
func (r *ScanResult) Summarize() Summary {
	return Summary{
		RunID:      r.RunID,
		Stage:      r.Stage,
		Family:     string(r.Request.Family),
		AsOf:       r.Request.AsOf.Format("2006-01-02"),
		Matched:    r.Matched(),
		Days:       len(r.Days),
		Batches:    r.Batches,
		CacheHits:  r.CacheHits,
		Incomplete: r.Incomplete,
		Duration:   r.Duration,
	}
}
