package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordUpdatesCollectors(t *testing.T) {
	c := NewCollectors()
	r := NewRecorder(c, 10)

	r.Record(Metric{Kind: "file_read", Outcome: OutcomeSuccess, Attempts: 1, TotalSeconds: 0.01})
	r.Record(Metric{Kind: "file_read", Outcome: OutcomeCacheHit, TotalSeconds: 0.0001})
	r.Record(Metric{Kind: "http_request", Outcome: OutcomeError, ErrorKind: "network", Attempts: 4, TotalSeconds: 2})
	r.CacheLookup("file_read", true)
	r.CacheLookup("file_read", false)
	r.Retry("http_request", "network")
	r.Gauges(3, 2, 7)

	if got := testutil.ToFloat64(c.Invocations.WithLabelValues("file_read", OutcomeSuccess)); got != 1 {
		t.Errorf("success invocations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Invocations.WithLabelValues("http_request", OutcomeError)); got != 1 {
		t.Errorf("error invocations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.CacheLookups.WithLabelValues("file_read", "hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Retries.WithLabelValues("http_request", "network")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PermitsInUse); got != 3 {
		t.Errorf("permits in use = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.CacheEntries); got != 7 {
		t.Errorf("cache entries = %v, want 7", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(Metric{Kind: "file_read"})
	r.CacheLookup("file_read", true)
	r.Retry("file_read", "network")
	r.RateLimited("http_request")
	r.Gauges(1, 1, 1)
	if got := r.List(Filter{}, 0); got != nil {
		t.Errorf("List on nil recorder = %v", got)
	}
	if r.GetSummary(Filter{}).Count != 0 {
		t.Error("summary on nil recorder not empty")
	}

	// A recorder without collectors still keeps history.
	bare := NewRecorder(nil, 2)
	bare.Record(Metric{Kind: "file_read", Outcome: OutcomeSuccess})
	bare.CacheLookup("file_read", true)
	if len(bare.List(Filter{}, 0)) != 1 {
		t.Error("bare recorder lost a record")
	}
}

func TestHistoryEviction(t *testing.T) {
	r := NewRecorder(nil, 3)
	for i := range 5 {
		r.Record(Metric{InvocationID: string(rune('a' + i)), Kind: "file_read", Outcome: OutcomeSuccess})
	}
	got := r.List(Filter{}, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].InvocationID != want {
			t.Errorf("record %d = %q, want %q", i, got[i].InvocationID, want)
		}
	}
}

func TestFilterAndSummary(t *testing.T) {
	r := NewRecorder(nil, 100)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Record(Metric{Kind: "file_read", Outcome: OutcomeSuccess, Attempts: 1, TotalSeconds: 1, CreatedAt: base})
	r.Record(Metric{Kind: "file_read", Outcome: OutcomeCacheHit, TotalSeconds: 0, CreatedAt: base.Add(time.Minute)})
	r.Record(Metric{Kind: "web_search", Outcome: OutcomeError, ErrorKind: "network", Attempts: 4, TotalSeconds: 3, CreatedAt: base.Add(2 * time.Minute)})
	r.Record(Metric{Kind: "http_request", Outcome: OutcomeFailed, Attempts: 1, TotalSeconds: 2, CreatedAt: base.Add(3 * time.Minute)})

	s := r.GetSummary(Filter{})
	if s.Count != 4 || s.SuccessCount != 2 || s.ErrorCount != 2 || s.CacheHits != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.TotalAttempts != 6 {
		t.Errorf("total attempts = %d, want 6", s.TotalAttempts)
	}
	if s.AvgTimeSeconds != 1.5 {
		t.Errorf("avg time = %v, want 1.5", s.AvgTimeSeconds)
	}

	failed := false
	if n := len(r.List(Filter{Success: &failed}, 0)); n != 2 {
		t.Errorf("failed records = %d, want 2", n)
	}
	if n := len(r.List(Filter{Kind: "file_read"}, 0)); n != 2 {
		t.Errorf("file_read records = %d, want 2", n)
	}
	if n := len(r.List(Filter{After: base.Add(90 * time.Second)}, 0)); n != 2 {
		t.Errorf("records after 90s = %d, want 2", n)
	}
	if n := len(r.List(Filter{}, 1)); n != 1 {
		t.Errorf("limited list = %d, want 1", n)
	}

	errs := r.ErrorsByKind(Filter{})
	if errs["network"] != 1 || errs[OutcomeFailed] != 1 {
		t.Errorf("errors by kind = %v", errs)
	}
	if retries := r.RetriesByKind(Filter{}); retries["web_search"] != 3 {
		t.Errorf("retries by kind = %v", retries)
	}
	if counts := r.CountByKind(Filter{}); counts["file_read"] != 2 || counts["http_request"] != 1 {
		t.Errorf("count by kind = %v", counts)
	}
}

func TestDetailedStats(t *testing.T) {
	r := NewRecorder(nil, 100)
	for i := 1; i <= 5; i++ {
		r.Record(Metric{Kind: "file_read", Outcome: OutcomeSuccess, Attempts: 1, TotalSeconds: float64(i), QueueSeconds: 0.5})
	}
	st := r.GetDetailedStats(Filter{})
	if st.LatencyMin != 1 || st.LatencyMax != 5 || st.LatencyP50 != 3 {
		t.Errorf("latencies = min %v max %v p50 %v", st.LatencyMin, st.LatencyMax, st.LatencyP50)
	}
	if st.AvgQueueSeconds != 0.5 {
		t.Errorf("avg queue = %v", st.AvgQueueSeconds)
	}
	byKind := r.StatsByKind(Filter{})
	if byKind["file_read"].Count != 5 {
		t.Errorf("by kind = %+v", byKind)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 50, 0},
		{"single", []float64{4}, 99, 4},
		{"median even", []float64{1, 2, 3, 4}, 50, 2.5},
		{"max", []float64{1, 2, 3}, 100, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.values, tt.p); got != tt.want {
				t.Errorf("percentile = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	c := NewCollectors()
	NewRecorder(c, 1).Record(Metric{Kind: "docker_list", Outcome: OutcomeSuccess})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `toolrun_invocations_total{kind="docker_list",outcome="success"} 1`) {
		t.Errorf("exposition missing invocation counter:\n%s", body)
	}
}
