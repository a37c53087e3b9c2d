package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/toolrun/internal/tool"
)

// BatchOptions control ExecuteAll.
type BatchOptions struct {
	// FailFast cancels the remaining invocations after the first error.
	FailFast bool
	// Parallelism caps how many invocations are submitted at once. Zero
	// means all of them; the gate still bounds how many actually run.
	Parallelism int
}

// BatchItem is the outcome of one invocation in a batch.
type BatchItem struct {
	Index      int
	Invocation tool.Invocation
	Result     tool.Result
	Err        error
}

// ExecuteAll runs invs concurrently and returns one item per invocation in
// input order. Per-item errors are reported in the items. The returned error
// is non-nil only with FailFast, and is the first failure.
func (e *Engine) ExecuteAll(ctx context.Context, invs []tool.Invocation, opts BatchOptions) ([]BatchItem, error) {
	items := make([]BatchItem, len(invs))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}

	runCtx := ctx
	if opts.FailFast {
		runCtx = gctx
	}

	for i, inv := range invs {
		items[i] = BatchItem{Index: i, Invocation: inv}
		g.Go(func() error {
			res, err := e.Execute(runCtx, inv)
			items[i].Result = res
			items[i].Err = err
			if opts.FailFast {
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	return items, err
}
