// Package tools holds the built-in Tool implementations: sandboxed
// filesystem access, command execution, HTTP-family requests and Docker.
//
// Implementations return failures as *toolerr.ToolError so the engine can
// decide whether to retry. Outcomes that are answers rather than faults (an
// HTTP 404, a search with no matches) come back as unsuccessful results.
package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

const (
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultCommandTimeout = 60 * time.Second
	DefaultSearchEndpoint = "https://api.duckduckgo.com/"

	// maxBodyBytes caps how much of an HTTP response is kept.
	maxBodyBytes = 10 << 20
)

// Options configure the built-in tools.
type Options struct {
	// Root confines every filesystem path and command working directory.
	Root string

	MaxFileSizeMB    int
	MaxSearchResults int

	CommandTimeout time.Duration
	HTTPTimeout    time.Duration
	SearchEndpoint string

	// HTTPClient is used for every HTTP-family tool. Nil builds one with
	// HTTPTimeout.
	HTTPClient *http.Client

	// Docker is the Docker Engine API. Nil connects from the environment
	// the first time a docker tool runs.
	Docker DockerAPI

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Root == "" {
		o.Root = "."
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.SearchEndpoint == "" {
		o.SearchEndpoint = DefaultSearchEndpoint
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{
			Timeout: o.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Set is the collection of built-in tools registered by Register.
type Set struct {
	Files    *Files
	Commands *Commands
	Web      *Web
	Docker   *Docker
}

// Close releases resources held by the tools.
func (s *Set) Close() error {
	if s == nil || s.Docker == nil {
		return nil
	}
	return s.Docker.Close()
}

// Register builds every built-in tool and installs it into reg.
func Register(reg *tool.Registry, opts Options) (*Set, error) {
	opts = opts.withDefaults()

	files, err := NewFiles(opts.Root, opts.MaxFileSizeMB, opts.MaxSearchResults)
	if err != nil {
		return nil, err
	}
	cmds, err := NewCommands(files.Root(), opts.CommandTimeout, opts.Logger)
	if err != nil {
		return nil, err
	}
	set := &Set{
		Files:    files,
		Commands: cmds,
		Web:      NewWeb(opts.HTTPClient, opts.SearchEndpoint, opts.Logger),
		Docker:   NewDocker(opts.Docker, opts.Logger),
	}

	table := map[tool.Kind]tool.Tool{
		tool.KindFileRead:      set.Files,
		tool.KindFileWrite:     set.Files,
		tool.KindFileSearch:    set.Files,
		tool.KindContentSearch: set.Files,
		tool.KindListDirectory: set.Files,
		tool.KindExecCommand:   set.Commands,
		tool.KindGitStatus:     set.Commands,
		tool.KindWebSearch:     set.Web,
		tool.KindWebScrape:     set.Web,
		tool.KindHTTPRequest:   set.Web,
		tool.KindRESTCall:      set.Web,
		tool.KindGraphQLQuery:  set.Web,
		tool.KindDockerList:    set.Docker,
		tool.KindDockerRun:     set.Docker,
		tool.KindDockerStop:    set.Docker,
		tool.KindDockerLogs:    set.Docker,
	}
	for kind, t := range table {
		if err := reg.Register(kind, t); err != nil {
			return nil, fmt.Errorf("register tools: %w", err)
		}
	}
	return set, nil
}

// unsupported reports an invocation routed to the wrong implementation.
func unsupported(inv tool.Invocation) error {
	return toolerr.NewToolNotFound(string(inv.Kind()))
}
