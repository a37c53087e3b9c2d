package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// recordingTimer fires immediately and remembers every requested delay.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTimer) After(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (r *recordingTimer) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noJitter() Config {
	cfg := DefaultConfig()
	cfg.Jitter = false
	return cfg
}

func failing(err error, calls *int) Operation {
	return func(ctx context.Context, attempt int) (tool.Result, error) {
		*calls++
		return tool.Result{}, err
	}
}

func TestBoundedRetries(t *testing.T) {
	timer := &recordingTimer{}
	s := NewScheduler(noJitter(), WithTimer(timer), WithLogger(quietLogger()))

	calls := 0
	_, err := s.Do(context.Background(), failing(toolerr.NewNetwork("https://example.com", "connection refused", nil), &calls))

	if calls != 4 {
		t.Errorf("attempts = %d, want 4", calls)
	}
	if toolerr.KindOf(err) != toolerr.KindNetwork {
		t.Errorf("err kind = %q, want network", toolerr.KindOf(err))
	}
	if got := len(timer.Delays()); got != 3 {
		t.Errorf("sleeps = %d, want 3", got)
	}
}

func TestZeroRetries(t *testing.T) {
	cfg := noJitter()
	cfg.MaxRetries = 0
	s := NewScheduler(cfg, WithTimer(&recordingTimer{}), WithLogger(quietLogger()))

	calls := 0
	_, _ = s.Do(context.Background(), failing(toolerr.NewNetwork("u", "down", nil), &calls))
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestFatalNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"tool not found", toolerr.NewToolNotFound("frobnicate")},
		{"permission", toolerr.NewPermission("rm -rf /", "dangerous_commands")},
		{"validation", toolerr.NewValidation("url", "absolute url", "/x")},
		{"authentication", toolerr.NewAuthentication("api", "bad token")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer := &recordingTimer{}
			s := NewScheduler(noJitter(), WithTimer(timer), WithLogger(quietLogger()))
			calls := 0
			_, err := s.Do(context.Background(), failing(tt.err, &calls))
			if calls != 1 {
				t.Errorf("attempts = %d, want 1", calls)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if len(timer.Delays()) != 0 {
				t.Errorf("slept before returning a fatal error")
			}
		})
	}
}

func TestRecoversAfterFailures(t *testing.T) {
	s := NewScheduler(noJitter(), WithTimer(&recordingTimer{}), WithLogger(quietLogger()))
	res, err := s.Do(context.Background(), func(ctx context.Context, attempt int) (tool.Result, error) {
		if attempt < 3 {
			return tool.Result{}, toolerr.NewTimeout("slow", time.Second, nil)
		}
		return tool.Succeeded("done", nil), nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if res.Output != "done" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRateLimitHonorsAdvisedDelay(t *testing.T) {
	timer := &recordingTimer{}
	s := NewScheduler(noJitter(), WithTimer(timer), WithLogger(quietLogger()))

	_, _ = s.Do(context.Background(), func(ctx context.Context, attempt int) (tool.Result, error) {
		if attempt == 1 {
			return tool.Result{}, toolerr.NewRateLimit("api.example.com", 5*time.Second)
		}
		return tool.Succeeded("ok", nil), nil
	})

	delays := timer.Delays()
	if len(delays) != 1 || delays[0] != 5*time.Second {
		t.Errorf("delays = %v, want [5s]", delays)
	}
}

func TestOverrideDelays(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"network", toolerr.NewNetwork("u", "down", nil), toolerr.NetworkRetryDelay},
		{"timeout", toolerr.NewTimeout("t", time.Second, nil), toolerr.TimeoutRetryDelay},
		{"rate limit without advice", toolerr.NewRateLimit("svc", 0), 100 * time.Millisecond},
		{"external command", toolerr.NewExternalCommand("make", nil, "", errors.New("boom")), 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer := &recordingTimer{}
			cfg := noJitter()
			cfg.MaxRetries = 1
			s := NewScheduler(cfg, WithTimer(timer), WithLogger(quietLogger()))
			calls := 0
			_, _ = s.Do(context.Background(), failing(tt.err, &calls))
			delays := timer.Delays()
			if len(delays) != 1 || delays[0] != tt.want {
				t.Errorf("delays = %v, want [%s]", delays, tt.want)
			}
		})
	}
}

func TestExponentialBackoff(t *testing.T) {
	timer := &recordingTimer{}
	cfg := Config{
		MaxRetries:        6,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	}
	s := NewScheduler(cfg, WithTimer(timer), WithLogger(quietLogger()))

	calls := 0
	_, _ = s.Do(context.Background(), failing(toolerr.NewDatabase("query", errors.New("locked")), &calls))

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	got := timer.Delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBackoffOverflowCaps(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Backoff(5000); got != cfg.MaxDelay {
		t.Errorf("Backoff(5000) = %s, want %s", got, cfg.MaxDelay)
	}
}

func TestJitterRange(t *testing.T) {
	cfg := DefaultConfig()
	err := toolerr.NewDatabase("q", nil)

	low := NewScheduler(cfg, WithRand(func() float64 { return 0 }))
	if got := low.Delay(0, err); got != 80*time.Millisecond {
		t.Errorf("min jitter delay = %s, want 80ms", got)
	}
	high := NewScheduler(cfg, WithRand(func() float64 { return 0.999999 }))
	if got := high.Delay(0, err); got < 119*time.Millisecond || got >= 120*time.Millisecond {
		t.Errorf("max jitter delay = %s, want just under 120ms", got)
	}

	real := NewScheduler(cfg)
	for range 1000 {
		d := real.Delay(2, err)
		if d < 320*time.Millisecond || d >= 480*time.Millisecond {
			t.Fatalf("jittered delay %s outside [320ms, 480ms)", d)
		}
	}

	// Advised delays are jittered too.
	rl := toolerr.NewRateLimit("svc", 5*time.Second)
	if got := low.Delay(0, rl); got != 4*time.Second {
		t.Errorf("jittered rate-limit delay = %s, want 4s", got)
	}
}

// blockingTimer never fires.
type blockingTimer struct{ called chan struct{} }

func (b blockingTimer) After(time.Duration) <-chan time.Time {
	select {
	case b.called <- struct{}{}:
	default:
	}
	return make(chan time.Time)
}

func TestCancelDuringBackoff(t *testing.T) {
	timer := blockingTimer{called: make(chan struct{}, 1)}
	s := NewScheduler(noJitter(), WithTimer(timer), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	calls := 0
	go func() {
		_, err := s.Do(ctx, failing(toolerr.NewNetwork("u", "down", nil), &calls))
		errc <- err
	}()

	<-timer.called
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScheduler(noJitter(), WithLogger(quietLogger()))
	calls := 0
	if _, err := s.Do(ctx, failing(errors.New("x"), &calls)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if calls != 0 {
		t.Errorf("attempts = %d, want 0", calls)
	}
}

func TestObserver(t *testing.T) {
	var seen []Attempt
	cfg := noJitter()
	cfg.MaxRetries = 2
	s := NewScheduler(cfg,
		WithTimer(&recordingTimer{}),
		WithLogger(quietLogger()),
		WithObserver(func(a Attempt) { seen = append(seen, a) }))

	calls := 0
	_, _ = s.Do(context.Background(), failing(toolerr.NewNetwork("u", "down", nil), &calls))
	if len(seen) != 2 {
		t.Fatalf("observed %d retries, want 2", len(seen))
	}
	if seen[0].Number != 1 || seen[1].Number != 2 {
		t.Errorf("attempt numbers = %d, %d", seen[0].Number, seen[1].Number)
	}
	if seen[0].Err.Kind != toolerr.KindNetwork || seen[0].Delay != toolerr.NetworkRetryDelay {
		t.Errorf("first observation = %+v", seen[0])
	}
}

func TestUnclassifiedErrorsAreWrapped(t *testing.T) {
	cfg := noJitter()
	cfg.MaxRetries = 1
	s := NewScheduler(cfg, WithTimer(&recordingTimer{}), WithLogger(quietLogger()))
	raw := errors.New("something odd")
	calls := 0
	_, err := s.Do(context.Background(), failing(raw, &calls))
	if _, ok := toolerr.As(err); !ok {
		t.Fatalf("err %T is not a ToolError", err)
	}
	if !errors.Is(err, raw) {
		t.Error("classification lost the original error")
	}
	if calls != 2 {
		t.Errorf("attempts = %d, want 2", calls)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.BackoffMultiplier = 0.5
	if toolerr.KindOf(bad.Validate()) != toolerr.KindInvalidConfig {
		t.Error("multiplier < 1 accepted")
	}
	bad = DefaultConfig()
	bad.MaxDelay = time.Millisecond
	if toolerr.KindOf(bad.Validate()) != toolerr.KindInvalidConfig {
		t.Error("max_delay < base_delay accepted")
	}
}
