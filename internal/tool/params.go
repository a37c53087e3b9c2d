package tool

import (
	"encoding/json"
	"maps"
	"net/http"
	"regexp"
	"slices"
	"strings"
)

// Params is the parameter shape of one tool kind. The set of implementations
// is closed: only the types in this file satisfy it.
type Params interface {
	Kind() Kind
	cacheable() bool
	clone() Params
}

// FileRead reads a file relative to the tool root.
type FileRead struct {
	Path string `json:"path"`
}

// FileWrite creates or overwrites a file relative to the tool root.
type FileWrite struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileSearch finds files whose name matches Pattern (glob or substring).
type FileSearch struct {
	Pattern   string `json:"pattern"`
	Directory string `json:"directory,omitempty"`
}

// ContentSearch finds lines containing Pattern.
type ContentSearch struct {
	Pattern   string `json:"pattern"`
	Directory string `json:"directory,omitempty"`
}

// ListDirectory lists the entries of a directory. An empty Path lists the
// root.
type ListDirectory struct {
	Path string `json:"path,omitempty"`
}

// ExecCommand runs a single program without a shell.
type ExecCommand struct {
	Command        string `json:"command"`
	Dir            string `json:"dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// GitStatus reports the working tree status of a repository.
type GitStatus struct {
	RepositoryPath string `json:"repository_path,omitempty"`
}

// WebSearch queries the configured search endpoint.
type WebSearch struct {
	Query string `json:"query"`
}

// WebScrape fetches a page and extracts its text.
type WebScrape struct {
	URL string `json:"url"`
}

// HTTPRequest is a generic HTTP call.
type HTTPRequest struct {
	Method         string            `json:"method,omitempty"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// APIAuth describes credentials attached to REST and GraphQL calls.
type APIAuth struct {
	Type     string `json:"type"` // bearer, basic, api_key
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Header   string `json:"header,omitempty"` // api_key header name
}

// RESTCall is a JSON REST call.
type RESTCall struct {
	Endpoint  string          `json:"endpoint"`
	Operation string          `json:"operation"` // GET, POST, PUT, PATCH, DELETE
	Data      json.RawMessage `json:"data,omitempty"`
	Auth      *APIAuth        `json:"auth,omitempty"`
}

// GraphQLQuery posts a GraphQL document.
type GraphQLQuery struct {
	Endpoint  string          `json:"endpoint"`
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables,omitempty"`
	Auth      *APIAuth        `json:"auth,omitempty"`
}

// DockerList lists containers.
type DockerList struct {
	All bool `json:"all,omitempty"`
}

// DockerRun creates and starts a container.
type DockerRun struct {
	Image   string            `json:"image"`
	Name    string            `json:"name,omitempty"`
	Command []string          `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Ports   map[string]string `json:"ports,omitempty"` // container port -> host port
	Labels  map[string]string `json:"labels,omitempty"`
}

// DockerStop stops a running container.
type DockerStop struct {
	Container      string `json:"container"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// DockerLogs fetches container logs.
type DockerLogs struct {
	Container string `json:"container"`
	Tail      string `json:"tail,omitempty"`
}

func (FileRead) Kind() Kind      { return KindFileRead }
func (FileWrite) Kind() Kind     { return KindFileWrite }
func (FileSearch) Kind() Kind    { return KindFileSearch }
func (ContentSearch) Kind() Kind { return KindContentSearch }
func (ListDirectory) Kind() Kind { return KindListDirectory }
func (ExecCommand) Kind() Kind   { return KindExecCommand }
func (GitStatus) Kind() Kind     { return KindGitStatus }
func (WebSearch) Kind() Kind     { return KindWebSearch }
func (WebScrape) Kind() Kind     { return KindWebScrape }
func (HTTPRequest) Kind() Kind   { return KindHTTPRequest }
func (RESTCall) Kind() Kind      { return KindRESTCall }
func (GraphQLQuery) Kind() Kind  { return KindGraphQLQuery }
func (DockerList) Kind() Kind    { return KindDockerList }
func (DockerRun) Kind() Kind     { return KindDockerRun }
func (DockerStop) Kind() Kind    { return KindDockerStop }
func (DockerLogs) Kind() Kind    { return KindDockerLogs }

// Reads and searches are pure functions of their parameters for the lifetime
// of a cache entry. Anything that mutates state, or observes state that
// changes independently of its parameters, is never cached.
func (FileRead) cacheable() bool      { return true }
func (FileWrite) cacheable() bool     { return false }
func (FileSearch) cacheable() bool    { return true }
func (ContentSearch) cacheable() bool { return true }
func (ListDirectory) cacheable() bool { return true }
func (ExecCommand) cacheable() bool   { return false }
func (GitStatus) cacheable() bool     { return false }
func (WebSearch) cacheable() bool     { return true }
func (WebScrape) cacheable() bool     { return true }
func (DockerList) cacheable() bool    { return false }
func (DockerRun) cacheable() bool     { return false }
func (DockerStop) cacheable() bool    { return false }
func (DockerLogs) cacheable() bool    { return false }

func (p HTTPRequest) cacheable() bool {
	switch strings.ToUpper(p.Method) {
	case "", http.MethodGet, http.MethodHead:
		return true
	}
	return false
}

func (p RESTCall) cacheable() bool {
	return strings.EqualFold(p.Operation, http.MethodGet)
}

var mutationPattern = regexp.MustCompile(`(?i)^\s*(#[^\n]*\n\s*)*mutation\b`)

func (p GraphQLQuery) cacheable() bool {
	return !mutationPattern.MatchString(p.Query)
}

func (p FileRead) clone() Params      { return p }
func (p FileWrite) clone() Params     { return p }
func (p FileSearch) clone() Params    { return p }
func (p ContentSearch) clone() Params { return p }
func (p ListDirectory) clone() Params { return p }
func (p ExecCommand) clone() Params   { return p }
func (p GitStatus) clone() Params     { return p }
func (p WebSearch) clone() Params     { return p }
func (p WebScrape) clone() Params     { return p }
func (p DockerList) clone() Params    { return p }
func (p DockerStop) clone() Params    { return p }
func (p DockerLogs) clone() Params    { return p }

func (p HTTPRequest) clone() Params {
	p.Headers = maps.Clone(p.Headers)
	return p
}

func (p RESTCall) clone() Params {
	p.Data = slices.Clone(p.Data)
	p.Auth = cloneAuth(p.Auth)
	return p
}

func (p GraphQLQuery) clone() Params {
	p.Variables = slices.Clone(p.Variables)
	p.Auth = cloneAuth(p.Auth)
	return p
}

func (p DockerRun) clone() Params {
	p.Command = slices.Clone(p.Command)
	p.Env = maps.Clone(p.Env)
	p.Ports = maps.Clone(p.Ports)
	p.Labels = maps.Clone(p.Labels)
	return p
}

func cloneAuth(a *APIAuth) *APIAuth {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
