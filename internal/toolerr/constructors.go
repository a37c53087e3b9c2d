package toolerr

import (
	"time"
)

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewFileSystem reports a filesystem failure on path.
func NewFileSystem(path string, err error) *ToolError {
	return &ToolError{Kind: KindFileSystem, Path: path, Message: causeMessage(err), Err: err}
}

// NewNetwork reports a failed request to url.
func NewNetwork(url, message string, err error) *ToolError {
	if message == "" {
		message = causeMessage(err)
	}
	return &ToolError{Kind: KindNetwork, URL: url, Message: message, Err: err}
}

// NewModel reports a failed model operation.
func NewModel(model string, err error) *ToolError {
	return &ToolError{Kind: KindModel, Model: model, Message: causeMessage(err), Err: err}
}

// NewGit reports a failed git operation.
func NewGit(operation, message string, err error) *ToolError {
	if message == "" {
		message = causeMessage(err)
	}
	return &ToolError{Kind: KindGit, Operation: operation, Message: message, Err: err}
}

// NewDocker reports a failed docker operation.
func NewDocker(operation string, err error) *ToolError {
	return &ToolError{Kind: KindDocker, Operation: operation, Message: causeMessage(err), Err: err}
}

// NewDatabase reports a failed database operation.
func NewDatabase(operation string, err error) *ToolError {
	return &ToolError{Kind: KindDatabase, Operation: operation, Message: causeMessage(err), Err: err}
}

// NewPackageManager reports a failed package manager invocation.
func NewPackageManager(manager string, err error) *ToolError {
	return &ToolError{Kind: KindPackageManager, Manager: manager, Message: causeMessage(err), Err: err}
}

// NewPermission reports an operation refused for lack of a permission.
func NewPermission(operation, required string) *ToolError {
	return &ToolError{Kind: KindPermission, Operation: operation, RequiredPermission: required}
}

// NewToolNotFound reports that no implementation exists for name.
func NewToolNotFound(name string) *ToolError {
	return &ToolError{Kind: KindToolNotFound, ToolName: name}
}

// NewInvalidConfig reports a bad configuration value.
func NewInvalidConfig(config, message string) *ToolError {
	return &ToolError{Kind: KindInvalidConfig, Config: config, Message: message}
}

// NewTimeout reports that name did not finish within timeout.
// A zero timeout is used when the execution never started.
func NewTimeout(name string, timeout time.Duration, err error) *ToolError {
	return &ToolError{
		Kind:      KindTimeout,
		ToolName:  name,
		TimeoutMS: uint64(timeout.Milliseconds()),
		Message:   causeMessage(err),
		Err:       err,
	}
}

// NewChainExecution reports the failure of step within a tool chain.
func NewChainExecution(step int, message string, err error) *ToolError {
	return &ToolError{Kind: KindChainExecution, Step: step, Message: message, Err: err}
}

// NewSearch reports a failed search for query.
func NewSearch(query string, err error) *ToolError {
	return &ToolError{Kind: KindSearch, Query: query, Message: causeMessage(err), Err: err}
}

// NewParse reports input that could not be parsed.
func NewParse(input, message string, err error) *ToolError {
	if message == "" {
		message = causeMessage(err)
	}
	return &ToolError{Kind: KindParse, Input: input, Message: message, Err: err}
}

// NewValidation reports a field whose value did not match expectations.
func NewValidation(field, expected, actual string) *ToolError {
	return &ToolError{Kind: KindValidation, Field: field, Expected: expected, Actual: actual}
}

// NewExternalCommand reports a command that exited unsuccessfully.
// exitCode is nil when the process never produced one.
func NewExternalCommand(command string, exitCode *int, stderr string, err error) *ToolError {
	return &ToolError{
		Kind:     KindExternalCommand,
		Command:  command,
		ExitCode: exitCode,
		Stderr:   stderr,
		Message:  causeMessage(err),
		Err:      err,
	}
}

// NewAuthentication reports rejected credentials for service.
func NewAuthentication(service, message string) *ToolError {
	return &ToolError{Kind: KindAuthentication, Service: service, Message: message}
}

// NewRateLimit reports throttling by service. retryAfter is the server-advised
// wait, or zero when none was given.
func NewRateLimit(service string, retryAfter time.Duration) *ToolError {
	return &ToolError{Kind: KindRateLimit, Service: service, RetryAfter: retryAfter}
}
