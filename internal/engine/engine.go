// Package engine runs tool invocations under bounded concurrency with result
// caching and classified retries.
//
// Every invocation goes through the same pipeline:
//
//	validate → lookup → cache → gate → (rate limit → invoke)×retry → cache insert
//
// The permit taken from the gate is released on every exit path, and
// nothing is written to the cache unless the run finished successfully
// while the caller was still waiting for it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jackzampolin/toolrun/internal/cache"
	"github.com/jackzampolin/toolrun/internal/gate"
	"github.com/jackzampolin/toolrun/internal/metrics"
	"github.com/jackzampolin/toolrun/internal/ratelimit"
	"github.com/jackzampolin/toolrun/internal/retry"
	"github.com/jackzampolin/toolrun/internal/svcctx"
	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// Engine executes invocations. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *tool.Registry
	logger   *slog.Logger
	metrics  *metrics.Recorder

	gate    *gate.Gate
	cache   *cache.Cache
	retrier *retry.Scheduler
	limiter *ratelimit.Limiter
	flight  singleflight.Group

	activeConns atomic.Int64
	now         func() time.Time
}

type options struct {
	cacheOpts []cache.Option
	retryOpts []retry.Option
	limiter   *ratelimit.Limiter
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*options)

// WithCacheOptions passes options through to the result cache.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

// WithRetryOptions passes options through to the retry scheduler.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *options) { o.retryOpts = append(o.retryOpts, opts...) }
}

// WithLimiter replaces the network rate limiter built from the limits.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithClock replaces time.Now for elapsed-time accounting.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds an engine. services may be nil, in which case logging goes to
// slog.Default() and metrics are discarded.
func New(cfg Config, registry *tool.Registry, services *svcctx.Services, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, errors.New("engine: nil registry")
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	logger := services.LoggerOrDefault().With("component", "engine")

	cacheOpts := []cache.Option{cache.WithMaxBytes(cfg.Limits.MaxMemoryMB << 20)}
	cacheOpts = append(cacheOpts, o.cacheOpts...)

	retryOpts := []retry.Option{retry.WithLogger(logger)}
	retryOpts = append(retryOpts, o.retryOpts...)

	limiter := o.limiter
	if limiter == nil {
		limiter = ratelimit.New(cfg.Limits.MaxNetworkRequestsPerMinute)
	}

	return &Engine{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		metrics:  services.MetricsOrNil(),
		gate:     gate.New(cfg.Limits.MaxConcurrentTools),
		cache:    cache.New(cacheOpts...),
		retrier:  retry.NewScheduler(cfg.Retry, retryOpts...),
		limiter:  limiter,
		now:      o.now,
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Execute runs one invocation to completion.
//
// Failures are returned as *toolerr.ToolError. If ctx ends first, the error
// is a Timeout whose cause is the context error; if the engine is closed,
// it is a Timeout of zero milliseconds wrapping gate.ErrClosed.
func (e *Engine) Execute(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	start := e.now()
	rec := metrics.Metric{
		InvocationID: uuid.NewString(),
		Kind:         string(inv.Kind()),
		Fingerprint:  inv.Fingerprint(),
		CreatedAt:    start,
	}
	log := e.logger.With("invocation_id", rec.InvocationID, "kind", inv.Kind(), "fingerprint", inv.Fingerprint())

	res, err := e.execute(ctx, inv, log, &rec, start)

	rec.TotalSeconds = e.now().Sub(start).Seconds()
	switch {
	case rec.Outcome != "":
	case err != nil:
		rec.Outcome = metrics.OutcomeError
		rec.ErrorKind = string(toolerr.KindOf(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			rec.Outcome = metrics.OutcomeCancelled
		}
	case res.Success:
		rec.Outcome = metrics.OutcomeSuccess
	default:
		rec.Outcome = metrics.OutcomeFailed
	}
	e.metrics.Record(rec)

	if err != nil {
		log.Warn("tool invocation failed", "error", err, "attempts", rec.Attempts, "elapsed", time.Duration(rec.TotalSeconds*float64(time.Second)))
	}
	return res, err
}

func (e *Engine) execute(ctx context.Context, inv tool.Invocation, log *slog.Logger, rec *metrics.Metric, start time.Time) (tool.Result, error) {
	if err := inv.Validate(); err != nil {
		return tool.Result{}, err
	}
	impl, err := e.registry.Lookup(inv.Kind())
	if err != nil {
		return tool.Result{}, err
	}

	if !inv.Cacheable() {
		return e.run(ctx, inv, impl, log, rec, start)
	}

	if res, ok := e.lookup(inv, log); ok {
		rec.Outcome = metrics.OutcomeCacheHit
		return res, nil
	}

	// Identical cacheable invocations in flight share one run. The run keeps
	// its own stats because it may outlive a caller that stops waiting.
	ch := e.flight.DoChan(inv.Fingerprint(), func() (any, error) {
		var stats metrics.Metric
		// Recheck inside the flight: a run may have finished since our lookup.
		if res, ok := e.cache.Lookup(inv.Fingerprint()); ok {
			stats.Outcome = metrics.OutcomeCacheHit
			return flightResult{res: res, stats: stats}, nil
		}
		res, err := e.run(ctx, inv, impl, log, &stats, start)
		return flightResult{res: res, stats: stats}, err
	})

	select {
	case r := <-ch:
		fr, _ := r.Val.(flightResult)
		rec.Outcome = fr.stats.Outcome
		rec.Attempts = fr.stats.Attempts
		rec.QueueSeconds = fr.stats.QueueSeconds
		rec.ExecutionSeconds = fr.stats.ExecutionSeconds
		if r.Err != nil {
			// The leader's caller gave up; ours has not, so run on our own.
			if r.Shared && isContextErr(r.Err) && ctx.Err() == nil {
				log.Debug("shared run was cancelled, retrying independently")
				*rec = metrics.Metric{InvocationID: rec.InvocationID, Kind: rec.Kind, Fingerprint: rec.Fingerprint, CreatedAt: rec.CreatedAt}
				return e.run(ctx, inv, impl, log, rec, start)
			}
			return tool.Result{}, r.Err
		}
		if r.Shared {
			return fr.res.Clone(), nil
		}
		return fr.res, nil
	case <-ctx.Done():
		return tool.Result{}, e.cancelled(inv, start, ctx.Err())
	}
}

type flightResult struct {
	res   tool.Result
	stats metrics.Metric
}

func (e *Engine) lookup(inv tool.Invocation, log *slog.Logger) (tool.Result, bool) {
	res, ok := e.cache.Lookup(inv.Fingerprint())
	e.metrics.CacheLookup(string(inv.Kind()), ok)
	if ok {
		log.Debug("cache hit")
	} else {
		log.Debug("cache miss")
	}
	return res, ok
}

// run takes a permit and drives the retry loop. The permit is released
// before run returns, whatever the outcome.
func (e *Engine) run(ctx context.Context, inv tool.Invocation, impl tool.Tool, log *slog.Logger, rec *metrics.Metric, start time.Time) (tool.Result, error) {
	waitStart := e.now()
	permit, err := e.gate.Acquire(ctx)
	if err != nil {
		if errors.Is(err, gate.ErrClosed) {
			return tool.Result{}, toolerr.NewTimeout(string(inv.Kind()), 0, err)
		}
		return tool.Result{}, e.cancelled(inv, start, err)
	}
	defer e.publishGauges()
	defer permit.Release()
	rec.QueueSeconds = e.now().Sub(waitStart).Seconds()
	e.publishGauges()
	log.Debug("permit acquired", "waited", e.now().Sub(waitStart), "available", e.gate.Available())

	execStart := e.now()
	network := inv.Kind().Network()
	var prev *toolerr.ToolError

	res, err := e.retrier.Do(ctx, func(ctx context.Context, attempt int) (tool.Result, error) {
		rec.Attempts = attempt
		if prev != nil {
			e.metrics.Retry(string(inv.Kind()), string(prev.Kind))
		}
		res, err := e.attempt(ctx, inv, impl, network)
		if err != nil {
			prev = toolerr.Classify(err)
			return tool.Result{}, prev
		}
		return res, nil
	})
	rec.ExecutionSeconds = e.now().Sub(execStart).Seconds()

	if err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, e.cancelled(inv, start, ctx.Err())
		}
		return tool.Result{}, err
	}

	if res.Success {
		// The write happened even if the caller has since gone away.
		for _, stale := range inv.Invalidates() {
			e.cache.Remove(stale.Fingerprint())
		}
	}
	if ctx.Err() != nil {
		return tool.Result{}, e.cancelled(inv, start, ctx.Err())
	}
	if inv.Cacheable() && e.cache.Insert(inv.Fingerprint(), res, e.cfg.CacheTTL) {
		log.Debug("cached result", "ttl", e.cfg.CacheTTL)
	}
	return res, nil
}

// attempt performs one call to the tool, throttling network kinds.
func (e *Engine) attempt(ctx context.Context, inv tool.Invocation, impl tool.Tool, network bool) (tool.Result, error) {
	if network {
		if err := e.limiter.Wait(ctx); err != nil {
			return tool.Result{}, err
		}
		e.activeConns.Add(1)
		defer e.activeConns.Add(-1)
	}

	res, err := impl.Execute(ctx, inv)
	if err != nil {
		if te, ok := toolerr.As(err); ok && te.Kind == toolerr.KindRateLimit {
			e.limiter.Record429(te.RetryAfter)
			e.metrics.RateLimited(string(inv.Kind()))
		}
		return tool.Result{}, err
	}
	return res, nil
}

func (e *Engine) cancelled(inv tool.Invocation, start time.Time, cause error) *toolerr.ToolError {
	return toolerr.NewTimeout(string(inv.Kind()), e.now().Sub(start), cause)
}

func (e *Engine) publishGauges() {
	e.metrics.Gauges(e.gate.Capacity()-e.gate.Available(), e.gate.Waiting(), e.cache.Len())
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.publishGauges()
}

// SweepCache removes expired cache entries and returns how many were removed.
func (e *Engine) SweepCache() int {
	n := e.cache.Sweep()
	e.publishGauges()
	return n
}

// StartSweeper sweeps the cache every interval until ctx is done.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	e.cache.StartSweeper(ctx, interval, e.logger)
}

// RateLimitStatus reports the network limiter state.
func (e *Engine) RateLimitStatus() ratelimit.Status {
	return e.limiter.Status()
}

// Close stops admitting work. Invocations waiting for a permit fail with a
// Timeout error; those already running finish normally.
func (e *Engine) Close() error {
	e.gate.Close()
	e.logger.Debug("engine closed")
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// String identifies the engine in logs.
func (e *Engine) String() string {
	return fmt.Sprintf("engine(permits=%d/%d, cached=%d)", e.gate.Available(), e.gate.Capacity(), e.cache.Len())
}
