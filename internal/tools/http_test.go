package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

func newTestWeb(t *testing.T, h http.HandlerFunc) (*Web, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWeb(srv.Client(), srv.URL, nil), srv
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		wantKind   toolerr.Kind
		wantResult bool
		retryAfter time.Duration
	}{
		{name: "ok", status: 200, wantResult: true},
		{name: "not found", status: 404, wantResult: true},
		{name: "rate limited", status: 429, header: map[string]string{"Retry-After": "7"}, wantKind: toolerr.KindRateLimit, retryAfter: 7 * time.Second},
		{name: "rate limited without advice", status: 429, wantKind: toolerr.KindRateLimit},
		{name: "unauthorized", status: 401, wantKind: toolerr.KindAuthentication},
		{name: "forbidden", status: 403, wantKind: toolerr.KindAuthentication},
		{name: "server error", status: 503, wantKind: toolerr.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, srv := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					rw.Header().Set(k, v)
				}
				rw.WriteHeader(tt.status)
				_, _ = io.WriteString(rw, "body")
			})

			res, err := w.Execute(context.Background(), tool.New(tool.HTTPRequest{URL: srv.URL}))
			if tt.wantResult {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				if res.Success != (tt.status < 400) || res.Metadata["status_code"] != tt.status {
					t.Errorf("result = %+v", res)
				}
				return
			}
			te, ok := toolerr.As(err)
			if !ok || te.Kind != tt.wantKind {
				t.Fatalf("err = %v, want %s", err, tt.wantKind)
			}
			if te.RetryAfter != tt.retryAfter {
				t.Errorf("retry after = %v, want %v", te.RetryAfter, tt.retryAfter)
			}
		})
	}
}

func TestHTTPRequestSendsMethodHeadersBody(t *testing.T) {
	w, srv := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || r.Header.Get("X-Test") != "yes" || string(body) != "payload" {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(rw, "accepted")
	})

	res, err := w.Execute(context.Background(), tool.New(tool.HTTPRequest{
		Method:  "post",
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
		Body:    "payload",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Output != "accepted" {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	w, srv := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := w.Execute(context.Background(), tool.New(tool.HTTPRequest{URL: srv.URL, TimeoutSeconds: 1}))
	if toolerr.KindOf(err) != toolerr.KindTimeout {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestHTTPTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	w := NewWeb(&http.Client{Timeout: time.Second}, "", nil)
	_, err := w.Execute(context.Background(), tool.New(tool.HTTPRequest{URL: url}))
	if toolerr.KindOf(err) != toolerr.KindNetwork {
		t.Errorf("err = %v, want network", err)
	}
}

func TestRESTCallAuth(t *testing.T) {
	tests := []struct {
		name   string
		auth   *tool.APIAuth
		header string
		want   string
	}{
		{"bearer", &tool.APIAuth{Type: "bearer", Token: "tok"}, "Authorization", "Bearer tok"},
		{"basic", &tool.APIAuth{Type: "basic", Username: "u", Password: "p"}, "Authorization", "Basic dTpw"},
		{"api key default header", &tool.APIAuth{Type: "api_key", Token: "k"}, "X-API-Key", "k"},
		{"api key custom header", &tool.APIAuth{Type: "api_key", Token: "k", Header: "X-Token"}, "X-Token", "k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, srv := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
				if r.Header.Get(tt.header) != tt.want {
					rw.WriteHeader(http.StatusUnauthorized)
					return
				}
				body, _ := io.ReadAll(r.Body)
				rw.Header().Set("Content-Type", "application/json")
				_, _ = rw.Write(body)
			})
			res, err := w.Execute(context.Background(), tool.New(tool.RESTCall{
				Endpoint:  srv.URL + "/items",
				Operation: "PUT",
				Data:      json.RawMessage(`{"id":1}`),
				Auth:      tt.auth,
			}))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Output != "{\n  \"id\": 1\n}" {
				t.Errorf("output = %q", res.Output)
			}
		})
	}

	w := NewWeb(nil, "", nil)
	_, err := w.Execute(context.Background(), tool.New(tool.RESTCall{
		Endpoint: "http://127.0.0.1:1", Operation: "GET", Auth: &tool.APIAuth{Type: "magic"},
	}))
	if toolerr.KindOf(err) != toolerr.KindValidation {
		t.Errorf("unknown auth err = %v", err)
	}
}

func TestGraphQLQuery(t *testing.T) {
	w, srv := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.Contains(req.Query, "broken") {
			_, _ = io.WriteString(rw, `{"data":null,"errors":[{"message":"field broken"},{"message":"again"}]}`)
			return
		}
		_, _ = io.WriteString(rw, `{"data":{"user":{"id":"`+req.Variables["id"].(string)+`"}}}`)
	})

	res, err := w.Execute(context.Background(), tool.New(tool.GraphQLQuery{
		Endpoint:  srv.URL,
		Query:     "query($id: ID!) { user(id: $id) { id } }",
		Variables: json.RawMessage(`{"id":"42"}`),
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || !strings.Contains(res.Output, `"id": "42"`) {
		t.Errorf("result = %+v", res)
	}

	res, err = w.Execute(context.Background(), tool.New(tool.GraphQLQuery{Endpoint: srv.URL, Query: "{ broken }"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.Error != "field broken; again" || res.Metadata["errors"] != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestWebScrape(t *testing.T) {
	const page = `<!doctype html>
<html><head><title>Example  Page</title><style>body { color: red }</style></head>
<body>
<h1>Heading</h1>
<script>var hidden = 1;</script>
<p>First <b>bold</b> paragraph.</p>
<p>See <a href="https://example.com/next">next</a>.</p>
</body></html>`
	w, srv := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(rw, page)
	})

	res, err := w.Execute(context.Background(), tool.New(tool.WebScrape{URL: srv.URL}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Example Page\n\nHeading\nFirst bold paragraph.\nSee next ."
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	if res.Metadata["title"] != "Example Page" || res.Metadata["links"] != 1 {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestWebSearch(t *testing.T) {
	w, _ := newTestWeb(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("q") {
		case "golang":
			_, _ = io.WriteString(rw, `{
				"Heading": "Go",
				"AbstractText": "Go is a programming language.",
				"AbstractURL": "https://go.dev",
				"RelatedTopics": [
					{"Text": "Gopher", "FirstURL": "https://go.dev/gopher"},
					{"Name": "Group", "Topics": [{"Text": "Goroutine", "FirstURL": "https://go.dev/g"}]}
				]
			}`)
		case "garbage":
			_, _ = io.WriteString(rw, "<html>")
		default:
			_, _ = io.WriteString(rw, `{}`)
		}
	})
	ctx := context.Background()

	res, err := w.Execute(ctx, tool.New(tool.WebSearch{Query: "golang"}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Metadata["results"] != 3 || !strings.HasPrefix(res.Output, "1. Go\n") || !strings.Contains(res.Output, "3. Goroutine") {
		t.Errorf("result = %+v", res)
	}

	res, err = w.Execute(ctx, tool.New(tool.WebSearch{Query: "nothing"}))
	if err != nil || res.Success {
		t.Errorf("empty search = %+v, %v", res, err)
	}

	_, err = w.Execute(ctx, tool.New(tool.WebSearch{Query: "garbage"}))
	if toolerr.KindOf(err) != toolerr.KindSearch {
		t.Errorf("bad body err = %v, want search", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
