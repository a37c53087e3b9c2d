package config

// Config holds toolrun configuration.
// Stored at: {home}/config.yaml
//
// Durations are written as Go duration strings ("100ms", "5m") and parsed
// when the config is converted for the engine or the tools.
type Config struct {
	Limits  LimitsCfg  `mapstructure:"limits" yaml:"limits"`
	Retry   RetryCfg   `mapstructure:"retry" yaml:"retry"`
	Cache   CacheCfg   `mapstructure:"cache" yaml:"cache"`
	Tools   ToolsCfg   `mapstructure:"tools" yaml:"tools"`
	Logging LoggingCfg `mapstructure:"logging" yaml:"logging"`
}

// LimitsCfg bounds what the engine and its tools may consume.
type LimitsCfg struct {
	MaxConcurrentTools          int     `mapstructure:"max_concurrent_tools" yaml:"max_concurrent_tools"`
	MaxMemoryMB                 int     `mapstructure:"max_memory_mb" yaml:"max_memory_mb"`
	MaxCPUUsage                 float64 `mapstructure:"max_cpu_usage" yaml:"max_cpu_usage"` // percent, advisory
	MaxNetworkRequestsPerMinute int     `mapstructure:"max_network_requests_per_minute" yaml:"max_network_requests_per_minute"`
	MaxFileSizeMB               int     `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	MaxSearchResults            int     `mapstructure:"max_search_results" yaml:"max_search_results"`
}

// RetryCfg configures the retry scheduler.
type RetryCfg struct {
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelay         string  `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay          string  `mapstructure:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	Jitter            bool    `mapstructure:"jitter" yaml:"jitter"`
}

// CacheCfg configures the result cache.
type CacheCfg struct {
	TTL           string `mapstructure:"ttl" yaml:"ttl"`                       // "0s" disables caching
	SweepInterval string `mapstructure:"sweep_interval" yaml:"sweep_interval"` // long-running commands only
}

// ToolsCfg configures the built-in tools.
type ToolsCfg struct {
	RootDir        string `mapstructure:"root_dir" yaml:"root_dir"` // supports ${ENV_VAR}; empty means the working directory
	HTTPTimeout    string `mapstructure:"http_timeout" yaml:"http_timeout"`
	CommandTimeout string `mapstructure:"command_timeout" yaml:"command_timeout"`
	SearchEndpoint string `mapstructure:"search_endpoint" yaml:"search_endpoint"`
}

// LoggingCfg configures the CLI logger.
type LoggingCfg struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Limits: LimitsCfg{
			MaxConcurrentTools:          10,
			MaxMemoryMB:                 1024,
			MaxCPUUsage:                 80.0,
			MaxNetworkRequestsPerMinute: 100,
			MaxFileSizeMB:               100,
			MaxSearchResults:            1000,
		},
		Retry: RetryCfg{
			MaxRetries:        3,
			BaseDelay:         "100ms",
			MaxDelay:          "30s",
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		Cache: CacheCfg{
			TTL:           "5m",
			SweepInterval: "1m",
		},
		Tools: ToolsCfg{
			HTTPTimeout:    "30s",
			CommandTimeout: "60s",
			SearchEndpoint: "https://api.duckduckgo.com/",
		},
		Logging: LoggingCfg{
			Level: "info",
		},
	}
}
