package tool

// Kind tags one member of the closed set of tool invocations.
type Kind string

const (
	KindFileRead      Kind = "file_read"
	KindFileWrite     Kind = "file_write"
	KindFileSearch    Kind = "file_search"
	KindContentSearch Kind = "content_search"
	KindListDirectory Kind = "list_directory"
	KindExecCommand   Kind = "execute_command"
	KindGitStatus     Kind = "git_status"
	KindWebSearch     Kind = "web_search"
	KindWebScrape     Kind = "web_scrape"
	KindHTTPRequest   Kind = "http_request"
	KindRESTCall      Kind = "rest_call"
	KindGraphQLQuery  Kind = "graphql_query"
	KindDockerList    Kind = "docker_list"
	KindDockerRun     Kind = "docker_run"
	KindDockerStop    Kind = "docker_stop"
	KindDockerLogs    Kind = "docker_logs"
)

// newParams maps each kind to a constructor for its zero parameter value.
// It is the single source of truth for which kinds exist.
var newParams = map[Kind]func() Params{
	KindFileRead:      func() Params { return &FileRead{} },
	KindFileWrite:     func() Params { return &FileWrite{} },
	KindFileSearch:    func() Params { return &FileSearch{} },
	KindContentSearch: func() Params { return &ContentSearch{} },
	KindListDirectory: func() Params { return &ListDirectory{} },
	KindExecCommand:   func() Params { return &ExecCommand{} },
	KindGitStatus:     func() Params { return &GitStatus{} },
	KindWebSearch:     func() Params { return &WebSearch{} },
	KindWebScrape:     func() Params { return &WebScrape{} },
	KindHTTPRequest:   func() Params { return &HTTPRequest{} },
	KindRESTCall:      func() Params { return &RESTCall{} },
	KindGraphQLQuery:  func() Params { return &GraphQLQuery{} },
	KindDockerList:    func() Params { return &DockerList{} },
	KindDockerRun:     func() Params { return &DockerRun{} },
	KindDockerStop:    func() Params { return &DockerStop{} },
	KindDockerLogs:    func() Params { return &DockerLogs{} },
}

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindFileRead, KindFileWrite, KindFileSearch, KindContentSearch, KindListDirectory,
		KindExecCommand, KindGitStatus,
		KindWebSearch, KindWebScrape, KindHTTPRequest, KindRESTCall, KindGraphQLQuery,
		KindDockerList, KindDockerRun, KindDockerStop, KindDockerLogs,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := newParams[k]
	return ok
}

// Network reports whether invocations of k issue outbound network requests
// and are therefore subject to the network rate limit.
func (k Kind) Network() bool {
	switch k {
	case KindWebSearch, KindWebScrape, KindHTTPRequest, KindRESTCall, KindGraphQLQuery:
		return true
	}
	return false
}
