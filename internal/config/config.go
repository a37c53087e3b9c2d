package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/toolrun/internal/engine"
	"github.com/jackzampolin/toolrun/internal/retry"
	"github.com/jackzampolin/toolrun/internal/toolerr"
	"github.com/jackzampolin/toolrun/internal/tools"
)

// EnvPrefix prefixes environment overrides, e.g. TOOLRUN_LIMITS_MAX_CONCURRENT_TOOLS.
const EnvPrefix = "TOOLRUN"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config.
// An empty cfgFile searches ./config.yaml and each of searchDirs.
func NewManager(cfgFile string, searchDirs ...string) (*Manager, error) {
	cm := &Manager{v: viper.New()}

	if err := cm.initViper(cfgFile, searchDirs); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, environment and config file.
func (cm *Manager) initViper(cfgFile string, searchDirs []string) error {
	for _, e := range Entries(DefaultConfig()) {
		cm.v.SetDefault(e.Key, e.Value)
	}

	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		for _, dir := range searchDirs {
			cm.v.AddConfigPath(dir)
		}
	}

	// The config file is optional.
	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// load parses the current viper state into a validated Config.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading. An edit that fails to load or validate
// is logged and the previous config stays in effect.
func (cm *Manager) WatchConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Validate checks that every section converts cleanly.
func (c *Config) Validate() error {
	ec, err := c.ToEngineConfig()
	if err != nil {
		return err
	}
	if err := ec.Validate(); err != nil {
		return err
	}
	if _, err := c.ToolOptions(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ToEngineConfig converts the config to the engine's form.
func (c *Config) ToEngineConfig() (engine.Config, error) {
	base, err := parseDuration("retry.base_delay", c.Retry.BaseDelay)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := parseDuration("retry.max_delay", c.Retry.MaxDelay)
	if err != nil {
		return engine.Config{}, err
	}
	ttl, err := parseDuration("cache.ttl", c.Cache.TTL)
	if err != nil {
		return engine.Config{}, err
	}
	if c.Retry.MaxRetries < 0 {
		return engine.Config{}, toolerr.NewInvalidConfig("retry.max_retries", "must not be negative")
	}

	return engine.Config{
		Limits: engine.Limits{
			MaxConcurrentTools:          c.Limits.MaxConcurrentTools,
			MaxMemoryMB:                 c.Limits.MaxMemoryMB,
			MaxCPUUsage:                 c.Limits.MaxCPUUsage,
			MaxNetworkRequestsPerMinute: c.Limits.MaxNetworkRequestsPerMinute,
			MaxFileSizeMB:               c.Limits.MaxFileSizeMB,
			MaxSearchResults:            c.Limits.MaxSearchResults,
		},
		Retry: retry.Config{
			MaxRetries:        uint(c.Retry.MaxRetries),
			BaseDelay:         base,
			MaxDelay:          maxDelay,
			BackoffMultiplier: c.Retry.BackoffMultiplier,
			Jitter:            c.Retry.Jitter,
		},
		CacheTTL: ttl,
	}, nil
}

// ToolOptions converts the config to options for the built-in tools.
// ${ENV_VAR} references in the root dir and search endpoint are resolved.
func (c *Config) ToolOptions() (tools.Options, error) {
	httpTimeout, err := parseDuration("tools.http_timeout", c.Tools.HTTPTimeout)
	if err != nil {
		return tools.Options{}, err
	}
	cmdTimeout, err := parseDuration("tools.command_timeout", c.Tools.CommandTimeout)
	if err != nil {
		return tools.Options{}, err
	}
	return tools.Options{
		Root:             ResolveEnvVars(c.Tools.RootDir),
		MaxFileSizeMB:    c.Limits.MaxFileSizeMB,
		MaxSearchResults: c.Limits.MaxSearchResults,
		HTTPTimeout:      httpTimeout,
		CommandTimeout:   cmdTimeout,
		SearchEndpoint:   ResolveEnvVars(c.Tools.SearchEndpoint),
	}, nil
}

// SweepInterval is how often long-running commands purge expired cache entries.
func (c *Config) SweepInterval() (time.Duration, error) {
	return parseDuration("cache.sweep_interval", c.Cache.SweepInterval)
}

// ParseLevel maps a logging level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, toolerr.NewInvalidConfig("logging.level", fmt.Sprintf("unknown level %q", level))
	}
	return l, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, toolerr.NewInvalidConfig(key, fmt.Sprintf("invalid duration %q", value))
	}
	if d < 0 {
		return 0, toolerr.NewInvalidConfig(key, "must not be negative")
	}
	return d, nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# toolrun configuration
# Every key can be overridden from the environment, e.g.
#   TOOLRUN_LIMITS_MAX_CONCURRENT_TOOLS=4 TOOLRUN_CACHE_TTL=0s
# tools.root_dir and tools.search_endpoint accept ${ENV_VAR} references.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
