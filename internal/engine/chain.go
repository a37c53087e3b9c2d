package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// Strategy decides what a chain does when a step fails.
type Strategy string

const (
	// FailFast stops the chain at the first failing step.
	FailFast Strategy = "fail_fast"
	// ContinueOnError records the failure as an unsuccessful result and
	// moves on to the next step.
	ContinueOnError Strategy = "continue_on_error"
	// RetryWithBackoff re-runs a failing step up to MaxRetries more times,
	// sleeping Backoff between tries, then stops the chain.
	RetryWithBackoff Strategy = "retry"
)

// ChainStep is one invocation in a chain.
type ChainStep struct {
	Invocation tool.Invocation `json:"invocation"`
	// DependsOn is the index of an earlier step whose output this step
	// consumes. nil means the immediately preceding step.
	DependsOn *int `json:"depends_on,omitempty"`
	// UsePreviousResult substitutes the first output line of the dependency
	// into this step's path parameter.
	UsePreviousResult bool `json:"use_previous_result,omitempty"`
}

// Chain is an ordered list of steps run one after another.
type Chain struct {
	ID         string        `json:"id,omitempty"`
	Steps      []ChainStep   `json:"steps"`
	Strategy   Strategy      `json:"strategy,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty"`
	Backoff    time.Duration `json:"-"`
}

// UnmarshalJSON accepts backoff as a duration string ("250ms").
func (c *Chain) UnmarshalJSON(data []byte) error {
	type plain Chain
	var aux struct {
		plain
		Backoff string `json:"backoff,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Chain(aux.plain)
	if aux.Backoff != "" {
		d, err := time.ParseDuration(aux.Backoff)
		if err != nil {
			return toolerr.NewParse(aux.Backoff, "invalid chain backoff", err)
		}
		c.Backoff = d
	}
	return nil
}

// Validate checks the chain's shape before anything runs.
func (c Chain) Validate() error {
	switch c.Strategy {
	case "", FailFast, ContinueOnError, RetryWithBackoff:
	default:
		return toolerr.NewValidation("strategy", "fail_fast, continue_on_error or retry", string(c.Strategy))
	}
	if c.MaxRetries < 0 {
		return toolerr.NewValidation("max_retries", "non-negative", fmt.Sprint(c.MaxRetries))
	}
	for i, step := range c.Steps {
		if step.DependsOn != nil && (*step.DependsOn < 0 || *step.DependsOn >= i) {
			return toolerr.NewValidation(fmt.Sprintf("steps[%d].depends_on", i), fmt.Sprintf("an earlier step in [0, %d)", i), fmt.Sprint(*step.DependsOn))
		}
		if step.UsePreviousResult && i == 0 {
			return toolerr.NewValidation("steps[0].use_previous_result", "false for the first step", "true")
		}
	}
	return nil
}

// ChainResult holds one result per step that ran, in step order.
type ChainResult struct {
	ID      string        `json:"id" yaml:"id"`
	Results []tool.Result `json:"results" yaml:"results"`
}

// ExecuteChain runs the chain's steps in order. Each step goes through
// Execute, so it is cached, gated and retried like any other invocation;
// the chain strategy applies on top once a step has failed for good.
//
// On failure the completed results are returned along with a
// ChainExecution error naming the failing step.
func (e *Engine) ExecuteChain(ctx context.Context, chain Chain) (ChainResult, error) {
	if chain.ID == "" {
		chain.ID = uuid.NewString()
	}
	if chain.Strategy == "" {
		chain.Strategy = FailFast
	}
	out := ChainResult{ID: chain.ID}
	if err := chain.Validate(); err != nil {
		return out, err
	}
	log := e.logger.With("chain_id", chain.ID, "strategy", chain.Strategy)

	for i, step := range chain.Steps {
		inv, err := resolveStep(step, i, out.Results)
		if err != nil {
			return out, toolerr.NewChainExecution(i, err.Error(), err)
		}

		res, err := e.Execute(ctx, inv)
		for retries := 0; err != nil && chain.Strategy == RetryWithBackoff && retries < chain.MaxRetries; retries++ {
			log.Debug("retrying chain step", "step", i, "retry", retries+1, "error", err)
			if werr := sleepCtx(ctx, chain.Backoff); werr != nil {
				break
			}
			res, err = e.Execute(ctx, inv)
		}

		if err == nil {
			out.Results = append(out.Results, res)
			continue
		}
		if chain.Strategy == ContinueOnError && ctx.Err() == nil {
			log.Debug("chain step failed, continuing", "step", i, "error", err)
			out.Results = append(out.Results, tool.Failed("", err.Error(), map[string]any{"error_kind": string(toolerr.KindOf(err))}))
			continue
		}
		log.Warn("chain stopped", "step", i, "error", err)
		return out, toolerr.NewChainExecution(i, err.Error(), err)
	}
	return out, nil
}

// resolveStep applies a step's dependency on an earlier result.
func resolveStep(step ChainStep, idx int, prior []tool.Result) (tool.Invocation, error) {
	if !step.UsePreviousResult {
		return step.Invocation, nil
	}
	dep := idx - 1
	if step.DependsOn != nil {
		dep = *step.DependsOn
	}
	if dep < 0 || dep >= len(prior) {
		return tool.Invocation{}, fmt.Errorf("step %d depends on step %d, which has no result", idx, dep)
	}
	path, _, _ := strings.Cut(prior[dep].Output, "\n")
	path = strings.TrimSpace(path)
	inv, ok := step.Invocation.WithPath(path)
	if !ok {
		return tool.Invocation{}, fmt.Errorf("%s has no path parameter to receive a previous result", step.Invocation.Kind())
	}
	return inv, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
