package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// Web implements the HTTP-family tool kinds.
type Web struct {
	client         *http.Client
	searchEndpoint string
	logger         *slog.Logger
	now            func() time.Time
}

// NewWeb creates HTTP tools using client. searchEndpoint serves web_search
// in the DuckDuckGo instant answer format.
func NewWeb(client *http.Client, searchEndpoint string, logger *slog.Logger) *Web {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if searchEndpoint == "" {
		searchEndpoint = DefaultSearchEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Web{client: client, searchEndpoint: searchEndpoint, logger: logger, now: time.Now}
}

// Execute runs one HTTP-family invocation.
func (w *Web) Execute(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	switch p := inv.Params().(type) {
	case tool.HTTPRequest:
		return w.request(ctx, p)
	case tool.RESTCall:
		return w.rest(ctx, p)
	case tool.GraphQLQuery:
		return w.graphql(ctx, p)
	case tool.WebScrape:
		return w.scrape(ctx, p)
	case tool.WebSearch:
		return w.search(ctx, p)
	default:
		return tool.Result{}, unsupported(inv)
	}
}

// response is a fully read HTTP response.
type response struct {
	status      int
	contentType string
	body        []byte
}

func (r response) metadata() map[string]any {
	return map[string]any{
		"status_code":  r.status,
		"content_type": r.contentType,
		"bytes":        len(r.body),
	}
}

// failed turns a 4xx answer (other than the ones do maps to errors) into an
// unsuccessful result.
func (r response) failed() (tool.Result, bool) {
	if r.status < 400 {
		return tool.Result{}, false
	}
	return tool.Failed(string(r.body), fmt.Sprintf("HTTP %d %s", r.status, http.StatusText(r.status)), r.metadata()), true
}

// do sends req and maps transport failures, 429, 401/403 and 5xx to
// classified errors. Any other status is returned to the caller.
func (w *Web) do(req *http.Request) (response, error) {
	target := req.URL.String()
	w.logger.Debug("http request", "method", req.Method, "url", target)

	resp, err := w.client.Do(req)
	if err != nil {
		if req.Context().Err() == nil && isTimeout(err) {
			return response{}, toolerr.NewTimeout(req.Method+" "+target, w.client.Timeout, err)
		}
		return response{}, toolerr.NewNetwork(target, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, toolerr.NewNetwork(target, "reading response body", err)
	}
	out := response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: body}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return out, toolerr.NewRateLimit(req.URL.Host, parseRetryAfter(resp.Header.Get("Retry-After"), w.now()))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return out, toolerr.NewAuthentication(req.URL.Host, fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	case resp.StatusCode >= 500:
		return out, toolerr.NewNetwork(target, fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), nil)
	}
	return out, nil
}

func (w *Web) request(ctx context.Context, p tool.HTTPRequest) (tool.Result, error) {
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}
	reqCtx := ctx
	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var body io.Reader
	if p.Body != "" {
		body = strings.NewReader(p.Body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, p.URL, body)
	if err != nil {
		return tool.Result{}, toolerr.NewValidation("url", "valid http(s) URL", p.URL)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return tool.Result{}, toolerr.NewTimeout(method+" "+p.URL, timeout, err)
		}
		return tool.Result{}, err
	}
	if res, ok := resp.failed(); ok {
		return res, nil
	}
	return tool.Succeeded(string(resp.body), resp.metadata()), nil
}

func (w *Web) rest(ctx context.Context, p tool.RESTCall) (tool.Result, error) {
	var body io.Reader
	if len(p.Data) > 0 {
		body = bytes.NewReader(p.Data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(p.Operation), p.Endpoint, body)
	if err != nil {
		return tool.Result{}, toolerr.NewValidation("endpoint", "valid http(s) URL", p.Endpoint)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := applyAuth(req, p.Auth); err != nil {
		return tool.Result{}, err
	}

	resp, err := w.do(req)
	if err != nil {
		return tool.Result{}, err
	}
	if res, ok := resp.failed(); ok {
		return res, nil
	}
	return tool.Succeeded(prettyJSON(resp.body), resp.metadata()), nil
}

type graphqlRequest struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (w *Web) graphql(ctx context.Context, p tool.GraphQLQuery) (tool.Result, error) {
	payload, err := json.Marshal(graphqlRequest{Query: p.Query, Variables: p.Variables})
	if err != nil {
		return tool.Result{}, toolerr.NewParse(string(p.Variables), "encoding graphql variables", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return tool.Result{}, toolerr.NewValidation("endpoint", "valid http(s) URL", p.Endpoint)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := applyAuth(req, p.Auth); err != nil {
		return tool.Result{}, err
	}

	resp, err := w.do(req)
	if err != nil {
		return tool.Result{}, err
	}
	if res, ok := resp.failed(); ok {
		return res, nil
	}

	var gr graphqlResponse
	if err := json.Unmarshal(resp.body, &gr); err != nil {
		return tool.Result{}, toolerr.NewParse(truncateBody(resp.body), "graphql response is not JSON", err)
	}
	meta := resp.metadata()
	meta["errors"] = len(gr.Errors)
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return tool.Failed(prettyJSON(gr.Data), strings.Join(msgs, "; "), meta), nil
	}
	return tool.Succeeded(prettyJSON(gr.Data), meta), nil
}

func (w *Web) scrape(ctx context.Context, p tool.WebScrape) (tool.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return tool.Result{}, toolerr.NewValidation("url", "valid http(s) URL", p.URL)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := w.do(req)
	if err != nil {
		return tool.Result{}, err
	}
	if res, ok := resp.failed(); ok {
		return res, nil
	}

	page, err := extractText(resp.body)
	if err != nil {
		return tool.Result{}, toolerr.NewParse(truncateBody(resp.body), "parsing html", err)
	}
	meta := resp.metadata()
	meta["title"] = page.Title
	meta["links"] = len(page.Links)
	out := page.Text
	if page.Title != "" {
		out = page.Title + "\n\n" + out
	}
	return tool.Succeeded(out, meta), nil
}

// instantAnswer is the subset of the DuckDuckGo instant answer API we read.
type instantAnswer struct {
	Heading       string
	AbstractText  string
	AbstractURL   string
	RelatedTopics []relatedTopic
}

type relatedTopic struct {
	Text     string
	FirstURL string
	Topics   []relatedTopic
}

func (w *Web) search(ctx context.Context, p tool.WebSearch) (tool.Result, error) {
	u, err := url.Parse(w.searchEndpoint)
	if err != nil {
		return tool.Result{}, toolerr.NewInvalidConfig("tools.search_endpoint", err.Error())
	}
	q := u.Query()
	q.Set("q", p.Query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return tool.Result{}, toolerr.NewInvalidConfig("tools.search_endpoint", err.Error())
	}
	resp, err := w.do(req)
	if err != nil {
		return tool.Result{}, err
	}
	if resp.status >= 400 {
		return tool.Result{}, toolerr.NewSearch(p.Query, fmt.Errorf("search endpoint returned HTTP %d", resp.status))
	}

	var ia instantAnswer
	if err := json.Unmarshal(resp.body, &ia); err != nil {
		return tool.Result{}, toolerr.NewSearch(p.Query, err)
	}

	var b strings.Builder
	n := 0
	if ia.AbstractText != "" {
		n++
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", n, ia.Heading, ia.AbstractText, ia.AbstractURL)
	}
	var walk func([]relatedTopic)
	walk = func(topics []relatedTopic) {
		for _, t := range topics {
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			if t.Text == "" {
				continue
			}
			n++
			fmt.Fprintf(&b, "%d. %s\n   %s\n", n, t.Text, t.FirstURL)
		}
	}
	walk(ia.RelatedTopics)

	meta := map[string]any{"results": n, "query": p.Query}
	if n == 0 {
		return tool.Failed("", fmt.Sprintf("no results for %q", p.Query), meta), nil
	}
	return tool.Succeeded(b.String(), meta), nil
}

func applyAuth(req *http.Request, auth *tool.APIAuth) error {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		creds := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		req.Header.Set("Authorization", "Basic "+creds)
	case "api_key":
		header := auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, auth.Token)
	default:
		return toolerr.NewValidation("auth.type", "bearer, basic or api_key", auth.Type)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Zero means the
// server gave no usable advice.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now).Round(time.Second)
	}
	return 0
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func prettyJSON(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
