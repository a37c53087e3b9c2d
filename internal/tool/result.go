package tool

import (
	"context"
	"maps"
)

// Result is the terminal outcome of one completed tool attempt.
// Metadata is opaque to the engine (HTTP status, container IDs, ...).
type Result struct {
	Success  bool           `json:"success" yaml:"success"`
	Output   string         `json:"output" yaml:"output"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy whose top-level metadata map is not shared.
func (r Result) Clone() Result {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

// Succeeded builds a successful result.
func Succeeded(output string, metadata map[string]any) Result {
	return Result{Success: true, Output: output, Metadata: metadata}
}

// Failed builds an unsuccessful result that is not an error, such as an
// HTTP 404 or a search with no matches.
func Failed(output, message string, metadata map[string]any) Result {
	return Result{Success: false, Output: output, Error: message, Metadata: metadata}
}

// Tool is implemented by the collaborators that actually perform work.
// Execute must honor ctx cancellation and return failures as errors
// (ideally *toolerr.ToolError) rather than panicking.
type Tool interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// Func adapts an ordinary function to the Tool interface.
type Func func(ctx context.Context, inv Invocation) (Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}
