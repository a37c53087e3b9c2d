package toolerr

import (
	"fmt"
	"strings"
)

// UserMessage renders the error for display to a person.
func (e *ToolError) UserMessage() string {
	switch e.Kind {
	case KindFileSystem:
		if e.Path != "" {
			return fmt.Sprintf("File operation failed (%s): %s", e.Path, e.Message)
		}
		return fmt.Sprintf("File operation failed: %s", e.Message)
	case KindNetwork:
		return fmt.Sprintf("Network request to '%s' failed: %s", e.URL, e.Message)
	case KindModel:
		return fmt.Sprintf("Model '%s' failed: %s", e.Model, e.Message)
	case KindGit:
		return fmt.Sprintf("Git %s failed: %s", e.Operation, e.Message)
	case KindDocker:
		return fmt.Sprintf("Docker %s failed: %s", e.Operation, e.Message)
	case KindDatabase:
		return fmt.Sprintf("Database %s failed: %s", e.Operation, e.Message)
	case KindPackageManager:
		return fmt.Sprintf("Package manager '%s' failed: %s", e.Manager, e.Message)
	case KindPermission:
		return fmt.Sprintf("Permission denied for '%s'. Required: %s", e.Operation, e.RequiredPermission)
	case KindToolNotFound:
		return fmt.Sprintf("Tool '%s' not found or not available", e.ToolName)
	case KindInvalidConfig:
		return fmt.Sprintf("Invalid configuration '%s': %s", e.Config, e.Message)
	case KindTimeout:
		return fmt.Sprintf("Tool '%s' timed out after %dms", e.ToolName, e.TimeoutMS)
	case KindChainExecution:
		return fmt.Sprintf("Tool chain stopped at step %d: %s", e.Step, e.Message)
	case KindSearch:
		return fmt.Sprintf("Search for '%s' failed: %s", e.Query, e.Message)
	case KindParse:
		return fmt.Sprintf("Could not parse '%s': %s", truncate(e.Input, 80), e.Message)
	case KindValidation:
		return fmt.Sprintf("Validation failed for '%s': expected '%s', got '%s'", e.Field, e.Expected, e.Actual)
	case KindExternalCommand:
		var b strings.Builder
		fmt.Fprintf(&b, "Command '%s' failed", e.Command)
		if e.ExitCode != nil {
			fmt.Fprintf(&b, " with exit code %d", *e.ExitCode)
		}
		if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
			fmt.Fprintf(&b, ": %s", stderr)
		}
		return b.String()
	case KindAuthentication:
		return fmt.Sprintf("Authentication with '%s' failed: %s", e.Service, e.Message)
	case KindRateLimit:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("Rate limited by '%s' (retry after %s)", e.Service, e.RetryAfter)
		}
		return fmt.Sprintf("Rate limited by '%s'", e.Service)
	default:
		return e.Error()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
