package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

func intPtr(i int) *int { return &i }

// chainHarness registers a file_search tool that lists two paths and a
// file_read tool that echoes the path it was given, failing on "bad".
func chainHarness(t *testing.T) (*harness, *atomic.Int32) {
	h := newHarness(t, func(c *Config) { c.Retry.MaxRetries = 0 })
	var reads atomic.Int32
	h.register(t, tool.KindFileSearch, counting(new(atomic.Int32), ok("src/main.go\nsrc/util.go")))
	h.register(t, tool.KindFileRead, func(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
		reads.Add(1)
		path := inv.Params().(tool.FileRead).Path
		if path == "bad" {
			return tool.Result{}, toolerr.NewFileSystem(path, errors.New("no such file"))
		}
		return tool.Succeeded("read "+path, nil), nil
	})
	return h, &reads
}

func TestChainUsesPreviousResult(t *testing.T) {
	h, _ := chainHarness(t)
	chain := Chain{Steps: []ChainStep{
		{Invocation: tool.New(tool.FileSearch{Pattern: "*.go"})},
		{Invocation: tool.New(tool.FileRead{}), UsePreviousResult: true, DependsOn: intPtr(0)},
	}}

	out, err := h.engine.ExecuteChain(context.Background(), chain)
	if err != nil {
		t.Fatalf("ExecuteChain: %v", err)
	}
	if out.ID == "" {
		t.Error("chain ID not assigned")
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if out.Results[1].Output != "read src/main.go" {
		t.Errorf("second step output = %q", out.Results[1].Output)
	}
}

func TestChainFailFast(t *testing.T) {
	h, reads := chainHarness(t)
	chain := Chain{Strategy: FailFast, Steps: []ChainStep{
		{Invocation: tool.New(tool.FileRead{Path: "ok"})},
		{Invocation: tool.New(tool.FileRead{Path: "bad"})},
		{Invocation: tool.New(tool.FileRead{Path: "never"})},
	}}

	out, err := h.engine.ExecuteChain(context.Background(), chain)
	te, ok := toolerr.As(err)
	if !ok || te.Kind != toolerr.KindChainExecution {
		t.Fatalf("err = %v, want chain_execution", err)
	}
	if te.Step != 1 {
		t.Errorf("failing step = %d, want 1", te.Step)
	}
	if toolerr.KindOf(errors.Unwrap(err)) != toolerr.KindFileSystem {
		t.Errorf("cause = %v", errors.Unwrap(err))
	}
	if len(out.Results) != 1 {
		t.Errorf("results = %d, want 1", len(out.Results))
	}
	if reads.Load() != 2 {
		t.Errorf("reads = %d, want 2", reads.Load())
	}
}

func TestChainContinueOnError(t *testing.T) {
	h, _ := chainHarness(t)
	chain := Chain{Strategy: ContinueOnError, Steps: []ChainStep{
		{Invocation: tool.New(tool.FileRead{Path: "bad"})},
		{Invocation: tool.New(tool.FileRead{Path: "good"})},
	}}

	out, err := h.engine.ExecuteChain(context.Background(), chain)
	if err != nil {
		t.Fatalf("ExecuteChain: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if out.Results[0].Success || out.Results[0].Error == "" {
		t.Errorf("failed step recorded as %+v", out.Results[0])
	}
	if out.Results[0].Metadata["error_kind"] != string(toolerr.KindFileSystem) {
		t.Errorf("metadata = %v", out.Results[0].Metadata)
	}
	if !out.Results[1].Success {
		t.Errorf("second step = %+v", out.Results[1])
	}
}

func TestChainRetryStrategy(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Retry.MaxRetries = 0 })
	var calls atomic.Int32
	h.register(t, tool.KindExecCommand, counting(&calls, func(n int32) (tool.Result, error) {
		if n < 3 {
			return tool.Result{}, toolerr.NewPermission("flaky", "execute")
		}
		return tool.Succeeded("ok", nil), nil
	}))

	step := ChainStep{Invocation: tool.New(tool.ExecCommand{Command: "make test"})}

	t.Run("exhausted", func(t *testing.T) {
		calls.Store(0)
		_, err := h.engine.ExecuteChain(context.Background(), Chain{
			Strategy: RetryWithBackoff, MaxRetries: 1, Backoff: time.Millisecond,
			Steps: []ChainStep{step},
		})
		if toolerr.KindOf(err) != toolerr.KindChainExecution {
			t.Fatalf("err = %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("recovers", func(t *testing.T) {
		calls.Store(0)
		out, err := h.engine.ExecuteChain(context.Background(), Chain{
			Strategy: RetryWithBackoff, MaxRetries: 3, Backoff: time.Millisecond,
			Steps: []ChainStep{step},
		})
		if err != nil {
			t.Fatalf("ExecuteChain: %v", err)
		}
		if len(out.Results) != 1 || out.Results[0].Output != "ok" {
			t.Errorf("results = %+v", out.Results)
		}
	})
}

func TestChainValidate(t *testing.T) {
	tests := []struct {
		name  string
		chain Chain
	}{
		{"unknown strategy", Chain{Strategy: "yolo"}},
		{"negative retries", Chain{MaxRetries: -1}},
		{"forward dependency", Chain{Steps: []ChainStep{
			{Invocation: tool.New(tool.FileRead{Path: "a"}), DependsOn: intPtr(1)},
			{Invocation: tool.New(tool.FileRead{Path: "b"})},
		}}},
		{"first step uses previous", Chain{Steps: []ChainStep{
			{Invocation: tool.New(tool.FileRead{Path: "a"}), UsePreviousResult: true},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if toolerr.KindOf(tt.chain.Validate()) != toolerr.KindValidation {
				t.Errorf("Validate() = %v, want validation error", tt.chain.Validate())
			}
		})
	}
}

func TestChainPathlessStep(t *testing.T) {
	h, _ := chainHarness(t)
	_, err := h.engine.ExecuteChain(context.Background(), Chain{Steps: []ChainStep{
		{Invocation: tool.New(tool.FileSearch{Pattern: "*.go"})},
		{Invocation: tool.New(tool.FileSearch{Pattern: "*.md"}), UsePreviousResult: true},
	}})
	te, ok := toolerr.As(err)
	if !ok || te.Kind != toolerr.KindChainExecution || te.Step != 1 {
		t.Errorf("err = %v, want chain_execution at step 1", err)
	}
}

func TestChainUnmarshal(t *testing.T) {
	data := []byte(`{
		"strategy": "retry",
		"max_retries": 2,
		"backoff": "250ms",
		"steps": [
			{"invocation": {"kind": "file_search", "params": {"pattern": "*.go"}}},
			{"invocation": {"kind": "file_read", "params": {}}, "use_previous_result": true, "depends_on": 0}
		]
	}`)
	var c Chain
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Strategy != RetryWithBackoff || c.MaxRetries != 2 || c.Backoff != 250*time.Millisecond {
		t.Errorf("chain = %+v", c)
	}
	if len(c.Steps) != 2 || c.Steps[1].Invocation.Kind() != tool.KindFileRead || *c.Steps[1].DependsOn != 0 {
		t.Errorf("steps = %+v", c.Steps)
	}

	if err := json.Unmarshal([]byte(`{"backoff": "soon"}`), &c); toolerr.KindOf(err) != toolerr.KindParse {
		t.Errorf("bad backoff err = %v", err)
	}
}
