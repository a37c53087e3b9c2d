package engine

import (
	"fmt"
	"time"

	"github.com/jackzampolin/toolrun/internal/cache"
	"github.com/jackzampolin/toolrun/internal/retry"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// Limits bound the resources an engine and its tools may consume. They are
// fixed for the life of an engine.
type Limits struct {
	MaxConcurrentTools          int     `json:"max_concurrent_tools" yaml:"max_concurrent_tools"`
	MaxMemoryMB                 int     `json:"max_memory_mb" yaml:"max_memory_mb"`
	MaxCPUUsage                 float64 `json:"max_cpu_usage" yaml:"max_cpu_usage"`
	MaxNetworkRequestsPerMinute int     `json:"max_network_requests_per_minute" yaml:"max_network_requests_per_minute"`
	MaxFileSizeMB               int     `json:"max_file_size_mb" yaml:"max_file_size_mb"`
	MaxSearchResults            int     `json:"max_search_results" yaml:"max_search_results"`
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentTools:          10,
		MaxMemoryMB:                 1024,
		MaxCPUUsage:                 80.0,
		MaxNetworkRequestsPerMinute: 100,
		MaxFileSizeMB:               100,
		MaxSearchResults:            1000,
	}
}

// Validate rejects limits no engine could run under.
func (l Limits) Validate() error {
	if l.MaxConcurrentTools < 1 {
		return toolerr.NewInvalidConfig("limits.max_concurrent_tools", "must be at least 1")
	}
	if l.MaxMemoryMB < 0 {
		return toolerr.NewInvalidConfig("limits.max_memory_mb", "must not be negative")
	}
	if l.MaxCPUUsage < 0 || l.MaxCPUUsage > 100 {
		return toolerr.NewInvalidConfig("limits.max_cpu_usage", fmt.Sprintf("must be within [0, 100], got %v", l.MaxCPUUsage))
	}
	if l.MaxNetworkRequestsPerMinute < 0 {
		return toolerr.NewInvalidConfig("limits.max_network_requests_per_minute", "must not be negative")
	}
	if l.MaxFileSizeMB < 0 {
		return toolerr.NewInvalidConfig("limits.max_file_size_mb", "must not be negative")
	}
	if l.MaxSearchResults < 0 {
		return toolerr.NewInvalidConfig("limits.max_search_results", "must not be negative")
	}
	return nil
}

// Config is everything an engine needs beyond its collaborators.
type Config struct {
	Limits   Limits
	Retry    retry.Config
	CacheTTL time.Duration
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Limits:   DefaultLimits(),
		Retry:    retry.DefaultConfig(),
		CacheTTL: cache.DefaultTTL,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.CacheTTL < 0 {
		return toolerr.NewInvalidConfig("cache.ttl", "must not be negative")
	}
	return nil
}
