// Package metrics tracks tool executions: Prometheus collectors for live
// scraping plus a bounded in-memory history for per-run summaries.
package metrics

import "time"

// Outcome labels for a finished invocation.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed" // tool returned an unsuccessful result
	OutcomeError     = "error"
	OutcomeCacheHit  = "cache_hit"
	OutcomeCancelled = "cancelled"
)

// Metric is the record of one finished invocation.
type Metric struct {
	InvocationID string `json:"invocation_id" yaml:"invocation_id"`
	Kind         string `json:"kind" yaml:"kind"`
	Fingerprint  string `json:"fingerprint" yaml:"fingerprint"`

	Outcome   string `json:"outcome" yaml:"outcome"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Attempts  int    `json:"attempts" yaml:"attempts"`

	// QueueSeconds is time spent waiting for a permit; ExecutionSeconds
	// covers all attempts including backoff.
	QueueSeconds     float64 `json:"queue_seconds" yaml:"queue_seconds"`
	ExecutionSeconds float64 `json:"execution_seconds" yaml:"execution_seconds"`
	TotalSeconds     float64 `json:"total_seconds" yaml:"total_seconds"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Succeeded reports whether the invocation produced a successful result,
// whether fresh or from the cache.
func (m Metric) Succeeded() bool {
	return m.Outcome == OutcomeSuccess || m.Outcome == OutcomeCacheHit
}
