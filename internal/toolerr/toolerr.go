// Package toolerr defines the closed error taxonomy for tool executions.
//
// Every failure that leaves a tool implementation is expressed as a *ToolError
// carrying one Kind plus the context fields that Kind uses. Retry policy is a
// pure function of the Kind (see Recoverable and RetryDelay), so classification
// never depends on state carried between attempts.
package toolerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the failure category of a ToolError.
type Kind string

const (
	KindFileSystem      Kind = "file_system"
	KindNetwork         Kind = "network"
	KindModel           Kind = "model"
	KindGit             Kind = "git"
	KindDocker          Kind = "docker"
	KindDatabase        Kind = "database"
	KindPackageManager  Kind = "package_manager"
	KindPermission      Kind = "permission"
	KindToolNotFound    Kind = "tool_not_found"
	KindInvalidConfig   Kind = "invalid_config"
	KindTimeout         Kind = "timeout"
	KindChainExecution  Kind = "chain_execution"
	KindSearch          Kind = "search"
	KindParse           Kind = "parse"
	KindValidation      Kind = "validation"
	KindExternalCommand Kind = "external_command"
	KindAuthentication  Kind = "authentication"
	KindRateLimit       Kind = "rate_limit"
)

// Fixed retry delays for kinds that override the scheduler's backoff.
const (
	NetworkRetryDelay = 1 * time.Second
	TimeoutRetryDelay = 500 * time.Millisecond
)

// Kinds returns every error kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindFileSystem, KindNetwork, KindModel, KindGit, KindDocker, KindDatabase,
		KindPackageManager, KindPermission, KindToolNotFound, KindInvalidConfig,
		KindTimeout, KindChainExecution, KindSearch, KindParse, KindValidation,
		KindExternalCommand, KindAuthentication, KindRateLimit,
	}
}

// ToolError is an immutable, classified tool failure.
// Only the fields relevant to Kind are populated.
type ToolError struct {
	Kind    Kind
	Message string

	Path               string        // FileSystem
	URL                string        // Network
	Model              string        // Model
	Operation          string        // Git, Docker, Database, Permission
	Manager            string        // PackageManager
	RequiredPermission string        // Permission
	ToolName           string        // ToolNotFound, Timeout
	Config             string        // InvalidConfig
	TimeoutMS          uint64        // Timeout
	Step               int           // ChainExecution
	Query              string        // Search
	Input              string        // Parse
	Field              string        // Validation
	Expected           string        // Validation
	Actual             string        // Validation
	Command            string        // ExternalCommand
	ExitCode           *int          // ExternalCommand
	Stderr             string        // ExternalCommand
	Service            string        // Authentication, RateLimit
	RetryAfter         time.Duration // RateLimit, zero when the service gave no advice

	// Err is the underlying cause, if any.
	Err error
}

// Error returns the structural description of the failure.
func (e *ToolError) Error() string {
	switch e.Kind {
	case KindFileSystem:
		return fmt.Sprintf("file operation failed: %s", e.Message)
	case KindNetwork:
		return fmt.Sprintf("network request failed: %s - %s", e.URL, e.Message)
	case KindModel:
		return fmt.Sprintf("model operation failed: %s - %s", e.Model, e.Message)
	case KindGit:
		return fmt.Sprintf("git operation failed: %s - %s", e.Operation, e.Message)
	case KindDocker:
		return fmt.Sprintf("docker operation failed: %s - %s", e.Operation, e.Message)
	case KindDatabase:
		return fmt.Sprintf("database operation failed: %s - %s", e.Operation, e.Message)
	case KindPackageManager:
		return fmt.Sprintf("package manager operation failed: %s - %s", e.Manager, e.Message)
	case KindPermission:
		return fmt.Sprintf("permission denied: %s", e.Operation)
	case KindToolNotFound:
		return fmt.Sprintf("tool not found: %s", e.ToolName)
	case KindInvalidConfig:
		return fmt.Sprintf("invalid tool configuration: %s - %s", e.Config, e.Message)
	case KindTimeout:
		return fmt.Sprintf("tool execution timeout: %s (timeout: %dms)", e.ToolName, e.TimeoutMS)
	case KindChainExecution:
		return fmt.Sprintf("tool chain execution failed at step %d: %s", e.Step, e.Message)
	case KindSearch:
		return fmt.Sprintf("search operation failed: %s - %s", e.Query, e.Message)
	case KindParse:
		return fmt.Sprintf("parse error: %s - %s", e.Input, e.Message)
	case KindValidation:
		return fmt.Sprintf("validation error: %s", e.Field)
	case KindExternalCommand:
		return fmt.Sprintf("external command failed: %s", e.Command)
	case KindAuthentication:
		return fmt.Sprintf("authentication failed: %s - %s", e.Service, e.Message)
	case KindRateLimit:
		return fmt.Sprintf("rate limited: %s", e.Service)
	default:
		if e.Message != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Message)
		}
		return string(e.Kind)
	}
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether retrying the failed operation may succeed.
func (e *ToolError) Recoverable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimit, KindExternalCommand, KindDatabase:
		return true
	default:
		return false
	}
}

// RetryDelay returns the kind-specific delay before the next attempt.
// ok is false when the scheduler's exponential backoff should be used instead.
func (e *ToolError) RetryDelay() (delay time.Duration, ok bool) {
	switch e.Kind {
	case KindNetwork:
		return NetworkRetryDelay, true
	case KindTimeout:
		return TimeoutRetryDelay, true
	case KindRateLimit:
		if e.RetryAfter > 0 {
			return e.RetryAfter, true
		}
	}
	return 0, false
}

// As extracts a *ToolError from err's chain.
func As(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf returns the Kind of the first ToolError in err's chain, or "" if none.
func KindOf(err error) Kind {
	if te, ok := As(err); ok {
		return te.Kind
	}
	return ""
}

// IsRecoverable reports whether err classifies as a recoverable ToolError.
func IsRecoverable(err error) bool {
	te, ok := As(err)
	return ok && te.Recoverable()
}
