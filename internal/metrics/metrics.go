package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics of the scan engine.
// A nil *Registry is valid and records nothing, so library callers and tests can skip metrics.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	reg *prometheus.Registry

	Items            *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	Batches          *prometheus.CounterVec
	PoolStarts       prometheus.Counter
	TerminateTimeout prometheus.Counter
	ActiveWorkers    prometheus.Gauge
	DayDuration      *prometheus.HistogramVec
}

// New creates a registry with every engine metric registered plus the Go runtime collectors
func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanengine_items_total",
				Help: "Work items processed by outcome",
			},
			[]string{"outcome"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanengine_day_cache_lookups_total",
				Help: "Day cache lookups by result (hit, miss, corrupt)",
			},
			[]string{"result"},
		),

		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanengine_batches_total",
				Help: "Batches finished by status (complete, quota, cancelled)",
			},
			[]string{"status"},
		),

		PoolStarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scanengine_pool_starts_total",
				Help: "Worker pools started",
			},
		),

		TerminateTimeout: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scanengine_pool_terminate_timeouts_total",
				Help: "Pool terminations that exceeded the join timeout",
			},
		),

		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scanengine_active_workers",
				Help: "Worker goroutines currently running",
			},
		),

		DayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scanengine_day_duration_seconds",
				Help:    "Wall time to produce one as-of day",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
	}

	m.reg.MustRegister(
		m.Items,
		m.CacheLookups,
		m.Batches,
		m.PoolStarts,
		m.TerminateTimeout,
		m.ActiveWorkers,
		m.DayDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// RecordItem counts one processed work item
func (m *Registry) RecordItem(outcome string) {
	if m == nil {
		return
	}
	m.Items.WithLabelValues(outcome).Inc()
}

// RecordCache counts one day cache lookup
func (m *Registry) RecordCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordBatch counts one finished batch
func (m *Registry) RecordBatch(status string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(status).Inc()
}

// RecordPoolStart counts a pool start
func (m *Registry) RecordPoolStart() {
	if m == nil {
		return
	}
	m.PoolStarts.Inc()
}

// RecordTerminateTimeout counts a forced pool termination
func (m *Registry) RecordTerminateTimeout() {
	if m == nil {
		return
	}
	m.TerminateTimeout.Inc()
}

// WorkerUp / WorkerDown track live worker goroutines
func (m *Registry) WorkerUp() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

func (m *Registry) WorkerDown() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
}

// ObserveDay records how long a day took; source is "cache" or "computed"
func (m *Registry) ObserveDay(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.DayDuration.WithLabelValues(source).Observe(d.Seconds())
}
