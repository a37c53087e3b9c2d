package metrics

import (
	"slices"
	"time"
)

// Summary provides a summary of records for a filter.
type Summary struct {
	Count          int           `json:"count" yaml:"count"`
	SuccessCount   int           `json:"success_count" yaml:"success_count"`
	ErrorCount     int           `json:"error_count" yaml:"error_count"`
	CacheHits      int           `json:"cache_hits" yaml:"cache_hits"`
	TotalAttempts  int           `json:"total_attempts" yaml:"total_attempts"`
	TotalTime      time.Duration `json:"total_time" yaml:"total_time"`
	AvgTimeSeconds float64       `json:"avg_time_seconds" yaml:"avg_time_seconds"`
}

// GetSummary returns a summary of records matching the filter.
func (r *Recorder) GetSummary(f Filter) Summary {
	var s Summary
	for _, m := range r.List(f, 0) {
		s.Count++
		if m.Succeeded() {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
		if m.Outcome == OutcomeCacheHit {
			s.CacheHits++
		}
		s.TotalAttempts += m.Attempts
		s.TotalTime += time.Duration(m.TotalSeconds * float64(time.Second))
	}
	if s.Count > 0 {
		s.AvgTimeSeconds = s.TotalTime.Seconds() / float64(s.Count)
	}
	return s
}

// DetailedStats adds latency percentiles and queueing time to a Summary.
type DetailedStats struct {
	Summary `yaml:",inline"`

	LatencyP50 float64 `json:"latency_p50" yaml:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95" yaml:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99" yaml:"latency_p99"`
	LatencyMin float64 `json:"latency_min" yaml:"latency_min"`
	LatencyMax float64 `json:"latency_max" yaml:"latency_max"`

	AvgQueueSeconds float64 `json:"avg_queue_seconds" yaml:"avg_queue_seconds"`
}

// GetDetailedStats returns detailed statistics for records matching the filter.
func (r *Recorder) GetDetailedStats(f Filter) DetailedStats {
	return detailed(r.List(f, 0))
}

// StatsByKind returns detailed statistics grouped by tool kind.
func (r *Recorder) StatsByKind(f Filter) map[string]DetailedStats {
	byKind := make(map[string][]Metric)
	for _, m := range r.List(f, 0) {
		byKind[m.Kind] = append(byKind[m.Kind], m)
	}
	out := make(map[string]DetailedStats, len(byKind))
	for kind, ms := range byKind {
		out[kind] = detailed(ms)
	}
	return out
}

func detailed(ms []Metric) DetailedStats {
	stats := DetailedStats{}
	if len(ms) == 0 {
		return stats
	}

	var latencies []float64
	var queued float64
	for _, m := range ms {
		stats.Count++
		if m.Succeeded() {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		if m.Outcome == OutcomeCacheHit {
			stats.CacheHits++
		}
		stats.TotalAttempts += m.Attempts
		stats.TotalTime += time.Duration(m.TotalSeconds * float64(time.Second))
		queued += m.QueueSeconds
		latencies = append(latencies, m.TotalSeconds)
	}
	stats.AvgTimeSeconds = stats.TotalTime.Seconds() / float64(stats.Count)
	stats.AvgQueueSeconds = queued / float64(stats.Count)

	slices.Sort(latencies)
	stats.LatencyMin = latencies[0]
	stats.LatencyMax = latencies[len(latencies)-1]
	stats.LatencyP50 = percentile(latencies, 50)
	stats.LatencyP95 = percentile(latencies, 95)
	stats.LatencyP99 = percentile(latencies, 99)
	return stats
}

// percentile calculates the p-th percentile from a sorted slice of values,
// interpolating linearly between neighbours.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := (p / 100.0) * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
