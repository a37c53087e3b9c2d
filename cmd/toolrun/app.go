package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/config"
	"github.com/jackzampolin/toolrun/internal/engine"
	"github.com/jackzampolin/toolrun/internal/home"
	"github.com/jackzampolin/toolrun/internal/svcctx"
	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/tools"
)

// app is everything a command needs to execute invocations.
type app struct {
	home     *home.Dir
	config   *config.Manager
	level    *slog.LevelVar
	logger   *slog.Logger
	services *svcctx.Services
	engine   *engine.Engine
	tools    *tools.Set
}

// newApp loads configuration and builds the engine with every built-in tool
// registered. The caller must Close it.
func newApp(cmd *cobra.Command) (*app, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	level := new(slog.LevelVar)
	level.Set(effectiveLevel(cfg))
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	services := svcctx.New(logger, h)

	ec, err := cfg.ToEngineConfig()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ToolOptions()
	if err != nil {
		return nil, err
	}
	if opts.Root == "" {
		opts.Root = h.WorkspacePath()
	}
	opts.Logger = logger

	reg := tool.NewRegistry()
	set, err := tools.Register(reg, opts)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(ec, reg, services)
	if err != nil {
		_ = set.Close()
		return nil, err
	}

	logger.Debug("toolrun ready",
		"config", mgr.File(),
		"root", set.Files.Root(),
		"max_concurrent_tools", ec.Limits.MaxConcurrentTools,
		"cache_ttl", ec.CacheTTL,
	)

	cmd.SetContext(svcctx.WithServices(cmd.Context(), services))
	return &app{
		home:     h,
		config:   mgr,
		level:    level,
		logger:   logger,
		services: services,
		engine:   eng,
		tools:    set,
	}, nil
}

// watchConfig hot-reloads the logging level. Limits, retry policy and
// cache TTL are fixed for the life of an engine, so changes to them are
// only reported.
func (a *app) watchConfig() {
	if a.config.File() == "" {
		return
	}
	a.config.OnChange(func(cfg *config.Config) {
		a.level.Set(effectiveLevel(cfg))
		a.logger.Info("config reloaded; engine limits apply to the next run", "file", a.config.File())
	})
	a.config.WatchConfig(a.logger)
}

// startSweeper purges expired cache entries in the background until ctx ends.
func (a *app) startSweeper(ctx context.Context) error {
	interval, err := a.config.Get().SweepInterval()
	if err != nil {
		return err
	}
	if interval > 0 {
		a.engine.StartSweeper(ctx, interval)
	}
	return nil
}

func (a *app) Close() error {
	if err := a.engine.Close(); err != nil {
		return err
	}
	if err := a.tools.Close(); err != nil {
		return fmt.Errorf("close tools: %w", err)
	}
	return nil
}

func effectiveLevel(cfg *config.Config) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
