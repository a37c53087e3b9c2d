package metrics

// CountByKind returns how many records each tool kind produced.
func (r *Recorder) CountByKind(f Filter) map[string]int {
	breakdown := make(map[string]int)
	for _, m := range r.List(f, 0) {
		breakdown[m.Kind]++
	}
	return breakdown
}

// ErrorsByKind returns failure counts keyed by error kind. Unsuccessful
// results that were not errors are counted under OutcomeFailed.
func (r *Recorder) ErrorsByKind(f Filter) map[string]int {
	breakdown := make(map[string]int)
	for _, m := range r.List(f, 0) {
		if m.Succeeded() {
			continue
		}
		key := m.ErrorKind
		if key == "" {
			key = m.Outcome
		}
		breakdown[key]++
	}
	return breakdown
}

// RetriesByKind returns the number of extra attempts spent per tool kind.
func (r *Recorder) RetriesByKind(f Filter) map[string]int {
	breakdown := make(map[string]int)
	for _, m := range r.List(f, 0) {
		if m.Attempts > 1 {
			breakdown[m.Kind] += m.Attempts - 1
		}
	}
	return breakdown
}
