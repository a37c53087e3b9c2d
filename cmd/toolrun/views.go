package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/toolrun/internal/engine"
	"github.com/jackzampolin/toolrun/internal/metrics"
	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// errorView is the serialized form of a failed invocation.
type errorView struct {
	Kind         toolerr.Kind `json:"kind" yaml:"kind"`
	Message      string       `json:"message" yaml:"message"`
	Detail       string       `json:"detail" yaml:"detail"`
	Recoverable  bool         `json:"recoverable" yaml:"recoverable"`
	RetryAfterMS int64        `json:"retry_after_ms,omitempty" yaml:"retry_after_ms,omitempty"`
}

func newErrorView(err error) *errorView {
	if err == nil {
		return nil
	}
	te := toolerr.Classify(err)
	v := &errorView{
		Kind:        te.Kind,
		Message:     te.UserMessage(),
		Detail:      te.Error(),
		Recoverable: te.Recoverable(),
	}
	if d, ok := te.RetryDelay(); ok {
		v.RetryAfterMS = d.Milliseconds()
	}
	return v
}

// runView is the outcome of one invocation.
type runView struct {
	Index       int          `json:"index" yaml:"index"`
	Kind        tool.Kind    `json:"kind" yaml:"kind"`
	Fingerprint string       `json:"fingerprint" yaml:"fingerprint"`
	Result      *tool.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error       *errorView   `json:"error,omitempty" yaml:"error,omitempty"`
}

func newRunView(index int, inv tool.Invocation, res tool.Result, err error) runView {
	v := runView{
		Index:       index,
		Kind:        inv.Kind(),
		Fingerprint: inv.Fingerprint(),
		Error:       newErrorView(err),
	}
	if err == nil {
		v.Result = &res
	}
	return v
}

func (v runView) Text() string {
	switch {
	case v.Error != nil:
		return "error: " + v.Error.Message
	case !v.Result.Success:
		if v.Result.Output != "" {
			return v.Result.Output + "\nfailed: " + v.Result.Error
		}
		return "failed: " + v.Result.Error
	default:
		return v.Result.Output
	}
}

// report wraps the results of a multi-invocation command with engine
// statistics.
type report struct {
	RunID   string                           `json:"run_id" yaml:"run_id"`
	Items   []runView                        `json:"items" yaml:"items"`
	Usage   engine.ResourceUsage             `json:"usage" yaml:"usage"`
	Summary metrics.Summary                  `json:"summary" yaml:"summary"`
	ByKind  map[string]metrics.DetailedStats `json:"by_kind,omitempty" yaml:"by_kind,omitempty"`
	SavedTo string                           `json:"saved_to,omitempty" yaml:"saved_to,omitempty"`
}

func newReport(a *app, runID string, items []runView) report {
	rec := a.services.Metrics
	return report{
		RunID:   runID,
		Items:   items,
		Usage:   a.engine.ResourceUsage(),
		Summary: rec.GetSummary(metrics.Filter{}),
		ByKind:  rec.StatsByKind(metrics.Filter{}),
	}
}

func (r report) Text() string {
	var b strings.Builder
	for _, item := range r.Items {
		fmt.Fprintf(&b, "--- [%d] %s %s\n", item.Index, item.Kind, shortID(item.Fingerprint))
		b.WriteString(item.Text())
		b.WriteString("\n")
	}
	if s := r.Summary; s.Count > 0 {
		fmt.Fprintf(&b, "--- %d ok, %d failed, %d cached, %d attempts in %s\n",
			s.SuccessCount, s.ErrorCount, s.CacheHits, s.TotalAttempts, s.TotalTime.Round(time.Millisecond))
	}
	if r.SavedTo != "" {
		fmt.Fprintf(&b, "saved to %s\n", r.SavedTo)
	}
	return b.String()
}

// failures counts items that ended in an error.
func (r report) failures() int {
	n := 0
	for _, item := range r.Items {
		if item.Error != nil {
			n++
		}
	}
	return n
}

// kindView describes one tool kind.
type kindView struct {
	Kind    tool.Kind `json:"kind" yaml:"kind"`
	Network bool      `json:"network" yaml:"network"`
}

type kindsView []kindView

func (k kindsView) Text() string {
	var b strings.Builder
	for _, v := range k {
		b.WriteString(string(v.Kind))
		if v.Network {
			b.WriteString("\t(network)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// shortID trims a "kind:hex" fingerprint to the first 12 hex digits.
func shortID(s string) string {
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
