package engine

import "github.com/jackzampolin/toolrun/internal/ratelimit"

// ResourceUsage is a point-in-time snapshot of what the engine holds.
type ResourceUsage struct {
	ConcurrentExecutions int     `json:"concurrent_executions" yaml:"concurrent_executions"`
	MaxConcurrentTools   int     `json:"max_concurrent_tools" yaml:"max_concurrent_tools"`
	WaitingForPermit     int     `json:"waiting_for_permit" yaml:"waiting_for_permit"`
	CachedResults        int     `json:"cached_results" yaml:"cached_results"`
	MemoryUsageMB        float64 `json:"memory_usage_mb" yaml:"memory_usage_mb"`
	ActiveConnections    int     `json:"active_connections" yaml:"active_connections"`

	RateLimit ratelimit.Status `json:"rate_limit" yaml:"rate_limit"`
}

// ResourceUsage reads the current usage. It has no side effects and may be
// called concurrently with anything else.
//
// Memory is the cache's own size estimate, not a process measurement, and
// active connections counts network tool attempts currently in progress.
func (e *Engine) ResourceUsage() ResourceUsage {
	capacity := e.gate.Capacity()
	return ResourceUsage{
		ConcurrentExecutions: capacity - e.gate.Available(),
		MaxConcurrentTools:   capacity,
		WaitingForPermit:     e.gate.Waiting(),
		CachedResults:        e.cache.Len(),
		MemoryUsageMB:        float64(e.cache.SizeBytes()) / (1 << 20),
		ActiveConnections:    int(e.activeConns.Load()),
		RateLimit:            e.limiter.Status(),
	}
}
