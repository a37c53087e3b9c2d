package config

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is a single dotted configuration key with its value.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// Entries flattens cfg into dotted keys, in the order they appear in the file.
func Entries(cfg *Config) []Entry {
	return []Entry{
		{"limits.max_concurrent_tools", cfg.Limits.MaxConcurrentTools, "Maximum tool invocations executing at once"},
		{"limits.max_memory_mb", cfg.Limits.MaxMemoryMB, "Memory budget reported in resource usage"},
		{"limits.max_cpu_usage", cfg.Limits.MaxCPUUsage, "CPU budget in percent (advisory)"},
		{"limits.max_network_requests_per_minute", cfg.Limits.MaxNetworkRequestsPerMinute, "Network tool invocations allowed per minute"},
		{"limits.max_file_size_mb", cfg.Limits.MaxFileSizeMB, "Largest file the file tools will read or write"},
		{"limits.max_search_results", cfg.Limits.MaxSearchResults, "Cap on file and content search matches"},

		{"retry.max_retries", cfg.Retry.MaxRetries, "Retries after the first attempt for recoverable errors"},
		{"retry.base_delay", cfg.Retry.BaseDelay, "Backoff delay before the first retry"},
		{"retry.max_delay", cfg.Retry.MaxDelay, "Upper bound on any backoff delay"},
		{"retry.backoff_multiplier", cfg.Retry.BackoffMultiplier, "Growth factor between successive delays"},
		{"retry.jitter", cfg.Retry.Jitter, "Scale delays by a random factor in [0.8, 1.2)"},

		{"cache.ttl", cfg.Cache.TTL, "Lifetime of cached results (0s disables caching)"},
		{"cache.sweep_interval", cfg.Cache.SweepInterval, "How often expired cache entries are purged"},

		{"tools.root_dir", cfg.Tools.RootDir, "Sandbox root for file and command tools (supports ${ENV_VAR})"},
		{"tools.http_timeout", cfg.Tools.HTTPTimeout, "Default timeout for web tools"},
		{"tools.command_timeout", cfg.Tools.CommandTimeout, "Default timeout for exec_command"},
		{"tools.search_endpoint", cfg.Tools.SearchEndpoint, "Instant-answer endpoint used by web_search"},

		{"logging.level", cfg.Logging.Level, "Log level: debug, info, warn, error"},
	}
}

// DefaultEntries returns the default configuration as dotted entries.
func DefaultEntries() []Entry {
	return Entries(DefaultConfig())
}

// GetDefault returns the default entry for key, or nil if the key is unknown.
func GetDefault(key string) *Entry {
	for _, e := range DefaultEntries() {
		if e.Key == key {
			return &e
		}
	}
	return nil
}

// Lookup returns the entry for key in cfg.
func Lookup(cfg *Config, key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	for _, e := range Entries(cfg) {
		if e.Key == key {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDefault, key)
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
