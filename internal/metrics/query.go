package metrics

import "time"

// Filter specifies which records a query considers. Zero fields match anything.
type Filter struct {
	Kind      string
	Outcome   string
	ErrorKind string
	After     time.Time
	Before    time.Time
	Success   *bool // nil = any, true = success only, false = errors only
}

func (f Filter) matches(m Metric) bool {
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	if f.Outcome != "" && m.Outcome != f.Outcome {
		return false
	}
	if f.ErrorKind != "" && m.ErrorKind != f.ErrorKind {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	if f.Success != nil && m.Succeeded() != *f.Success {
		return false
	}
	return true
}

// List returns records matching the filter, oldest first. limit <= 0 means
// no limit.
func (r *Recorder) List(f Filter, limit int) []Metric {
	var out []Metric
	for _, m := range r.snapshot() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if f.matches(m) {
			out = append(out, m)
		}
	}
	return out
}
