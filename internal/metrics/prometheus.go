package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the Prometheus instruments the engine updates. They are
// registered on a private registry so tests and multiple engines never
// collide on the global default.
type Collectors struct {
	registry *prometheus.Registry

	// Invocations counts finished invocations by kind and outcome.
	Invocations *prometheus.CounterVec
	// CacheLookups counts cache lookups by kind and result (hit, miss).
	CacheLookups *prometheus.CounterVec
	// Retries counts retry sleeps by tool kind and error kind.
	Retries *prometheus.CounterVec
	// Duration observes end-to-end invocation latency by kind.
	Duration *prometheus.HistogramVec
	// PermitsInUse tracks permits currently held.
	PermitsInUse prometheus.Gauge
	// GateWaiting tracks callers blocked waiting for a permit.
	GateWaiting prometheus.Gauge
	// CacheEntries tracks stored cache entries.
	CacheEntries prometheus.Gauge
	// RateLimited counts 429 responses by kind.
	RateLimited *prometheus.CounterVec
}

// NewCollectors creates and registers the collectors on a new registry.
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collectors{
		registry: reg,
		Invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolrun_invocations_total",
				Help: "Total number of finished tool invocations",
			},
			[]string{"kind", "outcome"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolrun_cache_lookups_total",
				Help: "Total number of result cache lookups",
			},
			[]string{"kind", "result"},
		),
		Retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolrun_retries_total",
				Help: "Total number of retries after a recoverable failure",
			},
			[]string{"kind", "error_kind"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolrun_invocation_duration_seconds",
				Help:    "End-to-end tool invocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		PermitsInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "toolrun_permits_in_use",
			Help: "Execution permits currently held",
		}),
		GateWaiting: f.NewGauge(prometheus.GaugeOpts{
			Name: "toolrun_gate_waiting",
			Help: "Callers waiting for an execution permit",
		}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "toolrun_cache_entries",
			Help: "Entries held in the result cache",
		}),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolrun_rate_limited_total",
				Help: "Total number of rate-limit responses from remote services",
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the private registry, for tests and custom exporters.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
