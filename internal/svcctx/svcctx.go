// Package svcctx carries the process-wide services (logger, metrics, home
// directory) built once at start. They are passed explicitly into the engine
// and may also ride along on a context for command handlers.
package svcctx

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackzampolin/toolrun/internal/home"
	"github.com/jackzampolin/toolrun/internal/metrics"
)

// Services holds the shared handles every component may need.
type Services struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Home    *home.Dir
}

// New builds Services with a fresh metrics recorder. A nil logger falls back
// to slog.Default().
func New(logger *slog.Logger, dir *home.Dir) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	return &Services{
		Logger:  logger,
		Metrics: metrics.NewRecorder(metrics.NewCollectors(), 0),
		Home:    dir,
	}
}

// Discard returns Services that log nowhere and keep metrics in memory,
// for tests.
func Discard() *Services {
	return &Services{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics.NewRecorder(metrics.NewCollectors(), 0),
	}
}

// LoggerOrDefault returns s.Logger, or slog.Default() when unset.
func (s *Services) LoggerOrDefault() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// MetricsOrNil returns s.Metrics, tolerating a nil receiver.
func (s *Services) MetricsOrNil() *metrics.Recorder {
	if s == nil {
		return nil
	}
	return s.Metrics
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context, falling back to slog.Default().
func LoggerFrom(ctx context.Context) *slog.Logger {
	return ServicesFrom(ctx).LoggerOrDefault()
}

// MetricsFrom extracts the metrics recorder from context.
func MetricsFrom(ctx context.Context) *metrics.Recorder {
	return ServicesFrom(ctx).MetricsOrNil()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
