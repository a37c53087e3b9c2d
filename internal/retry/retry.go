// Package retry drives repeated attempts of a tool operation.
//
// Each failed attempt is classified once. Fatal errors end the run
// immediately; recoverable ones are retried until the budget of
// MaxRetries+1 attempts is spent. The delay before the next attempt is the
// error's own advised delay when it has one, otherwise an exponential
// backoff capped at MaxDelay, optionally scaled by jitter in [0.8, 1.2).
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// Config controls the retry budget and backoff schedule.
type Config struct {
	MaxRetries        uint
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultConfig returns the default policy: 3 retries starting at 100ms,
// doubling up to 30s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Validate reports configuration that would make the schedule meaningless.
func (c Config) Validate() error {
	if c.BaseDelay < 0 {
		return toolerr.NewInvalidConfig("retry.base_delay", "must not be negative")
	}
	if c.MaxDelay < c.BaseDelay {
		return toolerr.NewInvalidConfig("retry.max_delay", fmt.Sprintf("must be at least base_delay (%s)", c.BaseDelay))
	}
	if c.BackoffMultiplier < 1 {
		return toolerr.NewInvalidConfig("retry.backoff_multiplier", "must be at least 1")
	}
	return nil
}

// Backoff returns the un-jittered delay for the given backoff exponent:
// BaseDelay * BackoffMultiplier^exponent, capped at MaxDelay.
func (c Config) Backoff(exponent int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(exponent))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Attempt is what an Observer sees after a failed attempt that will be retried.
type Attempt struct {
	Number int // 1-based attempt that just failed
	Err    *toolerr.ToolError
	Delay  time.Duration
}

// Observer is notified before each backoff sleep.
type Observer func(Attempt)

// Timer abstracts the backoff sleep so tests can run without waiting.
type Timer interface {
	After(time.Duration) <-chan time.Time
}

// Operation performs one attempt. attempt is 1-based.
type Operation func(ctx context.Context, attempt int) (tool.Result, error)

// Scheduler runs operations under a Config. It holds no per-run state and is
// safe for concurrent use.
type Scheduler struct {
	cfg      Config
	logger   *slog.Logger
	timer    Timer
	rand     func() float64
	observer Observer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithTimer replaces the real clock used for backoff sleeps.
func WithTimer(t Timer) Option {
	return func(s *Scheduler) { s.timer = t }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(s *Scheduler) { s.rand = f }
}

// WithObserver registers a callback invoked before every backoff sleep.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// NewScheduler creates a scheduler for cfg.
func NewScheduler(cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		logger: slog.Default(),
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scheduler's policy.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Delay computes the sleep before the next attempt after err, given the
// current backoff exponent.
func (s *Scheduler) Delay(exponent int, err *toolerr.ToolError) time.Duration {
	d, ok := err.RetryDelay()
	if !ok {
		d = s.cfg.Backoff(exponent)
	}
	if s.cfg.Jitter {
		d = time.Duration(float64(d) * (0.8 + 0.4*s.rand()))
	}
	return d
}

// Do runs op until it succeeds, fails fatally, or exhausts the retry budget.
// Errors from op are classified into *toolerr.ToolError. If ctx ends during
// a backoff sleep, the context's error is returned unwrapped so the caller
// can tell cancellation apart from a tool failure.
func (s *Scheduler) Do(ctx context.Context, op Operation) (tool.Result, error) {
	if err := ctx.Err(); err != nil {
		return tool.Result{}, err
	}

	var (
		attempt  int
		exponent int
		lastErr  *toolerr.ToolError
	)

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(s.cfg.MaxRetries + 1),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return toolerr.IsRecoverable(err)
		}),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			d := s.Delay(exponent, lastErr)
			exponent++
			return d
		}),
		retry.WithTimer(observedTimer{s: s, attempt: &attempt, lastErr: &lastErr}),
	}

	result, err := retry.DoWithData(func() (tool.Result, error) {
		attempt++
		res, err := op(ctx, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = toolerr.Classify(err)
		s.logger.Debug("tool attempt failed",
			"attempt", attempt,
			"kind", lastErr.Kind,
			"recoverable", lastErr.Recoverable(),
			"error", lastErr)
		return tool.Result{}, lastErr
	}, opts...)

	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return tool.Result{}, ctxErr
	}
	if lastErr != nil {
		if lastErr.Recoverable() && attempt > int(s.cfg.MaxRetries) {
			s.logger.Warn("retry budget exhausted",
				"attempts", attempt,
				"kind", lastErr.Kind,
				"error", lastErr)
		}
		return tool.Result{}, lastErr
	}
	return tool.Result{}, toolerr.Classify(err)
}

// observedTimer reports each scheduled sleep to the observer before waiting.
type observedTimer struct {
	s       *Scheduler
	attempt *int
	lastErr **toolerr.ToolError
}

func (t observedTimer) After(d time.Duration) <-chan time.Time {
	if t.s.observer != nil {
		t.s.observer(Attempt{Number: *t.attempt, Err: *t.lastErr, Delay: d})
	}
	t.s.logger.Debug("retrying tool after backoff", "attempt", *t.attempt, "delay", d)
	if t.s.timer == nil {
		return time.After(d)
	}
	return t.s.timer.After(d)
}
