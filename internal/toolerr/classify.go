package toolerr

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os/exec"
)

// Classify maps an arbitrary error returned by a tool implementation onto the
// taxonomy. A *ToolError anywhere in the chain is returned unchanged.
//
// Errors that match no known shape are treated as a failed external operation
// (KindExternalCommand), which keeps them inside the retry budget.
func Classify(err error) *ToolError {
	if err == nil {
		return nil
	}
	if te, ok := As(err); ok {
		return te
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeout("", 0, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeout(targetOf(err), 0, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewNetwork(urlErr.URL, "", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		addr := ""
		if opErr.Addr != nil {
			addr = opErr.Addr.String()
		}
		return NewNetwork(addr, "", err)
	}

	if errors.Is(err, exec.ErrNotFound) {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return NewToolNotFound(execErr.Name)
		}
		return NewToolNotFound("")
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return NewExternalCommand("", &code, string(exitErr.Stderr), err)
	}

	var pathErr *fs.PathError
	if errors.Is(err, fs.ErrPermission) {
		path := ""
		if errors.As(err, &pathErr) {
			path = pathErr.Path
		}
		return NewPermission(path, "filesystem access")
	}
	if errors.As(err, &pathErr) {
		return NewFileSystem(pathErr.Path, err)
	}

	return NewExternalCommand("", nil, "", err)
}

func targetOf(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.URL
	}
	return ""
}
