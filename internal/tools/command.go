package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

const maxCommandLength = 1000

// Commands are run without a shell, so these patterns would either be passed
// through literally or signal an attempt to chain, redirect or substitute.
var dangerousPatterns = []string{
	"|", "&", ";", "`", "$(", ">", "<",
	"rm -rf /", ":(){",
}

// deniedPrograms open arbitrary network connections.
var deniedPrograms = map[string]bool{
	"curl":   true,
	"wget":   true,
	"nc":     true,
	"netcat": true,
}

// Commands implements execute_command and git_status.
type Commands struct {
	sandbox sandbox
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommands creates command tools whose working directories are confined
// to root. timeout applies when an invocation does not set its own.
func NewCommands(root string, timeout time.Duration, logger *slog.Logger) (*Commands, error) {
	sb, err := newSandbox(root)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{sandbox: sb, timeout: timeout, logger: logger}, nil
}

// Execute runs one command invocation.
func (c *Commands) Execute(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	switch p := inv.Params().(type) {
	case tool.ExecCommand:
		return c.exec(ctx, p)
	case tool.GitStatus:
		return c.gitStatus(ctx, p)
	default:
		return tool.Result{}, unsupported(inv)
	}
}

// CheckCommand rejects commands that look like injection attempts.
func CheckCommand(command string) error {
	if len(command) > maxCommandLength {
		return toolerr.NewPermission("execute over-long command", fmt.Sprintf("at most %d characters", maxCommandLength))
	}
	for _, r := range command {
		if unicode.IsControl(r) && r != '\t' {
			return toolerr.NewPermission("execute command with control characters", "printable command")
		}
	}
	lower := strings.ToLower(command)
	for _, pat := range dangerousPatterns {
		if strings.Contains(lower, pat) {
			return toolerr.NewPermission(fmt.Sprintf("execute command containing %q", pat), "plain program and arguments")
		}
	}
	fields := strings.Fields(lower)
	if len(fields) > 0 && deniedPrograms[filepath.Base(fields[0])] {
		return toolerr.NewPermission("execute "+fields[0], "program without network access")
	}
	return nil
}

func (c *Commands) exec(ctx context.Context, p tool.ExecCommand) (tool.Result, error) {
	if err := CheckCommand(p.Command); err != nil {
		return tool.Result{}, err
	}
	args := strings.Fields(p.Command)
	if len(args) == 0 {
		return tool.Result{}, toolerr.NewValidation("command", "non-empty command", "")
	}
	dir, err := c.sandbox.resolve(p.Dir)
	if err != nil {
		return tool.Result{}, err
	}
	timeout := c.timeout
	if p.TimeoutSeconds > 0 {
		timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}

	stdout, stderr, err := c.run(ctx, dir, timeout, args...)
	if err != nil {
		return tool.Result{}, c.commandError(ctx, p.Command, timeout, stderr, err)
	}
	out := stdout
	if out == "" {
		out = stderr
	}
	return tool.Succeeded(out, map[string]any{
		"exit_code": 0,
		"stderr":    stderr,
	}), nil
}

func (c *Commands) gitStatus(ctx context.Context, p tool.GitStatus) (tool.Result, error) {
	dir, err := c.sandbox.resolve(p.RepositoryPath)
	if err != nil {
		return tool.Result{}, err
	}
	stdout, stderr, err := c.run(ctx, dir, c.timeout, "git", "status", "--porcelain=v1", "--branch")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return tool.Result{}, toolerr.NewGit("status", "git is not installed", err)
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return tool.Result{}, toolerr.NewTimeout("git status", c.timeout, err)
		}
		return tool.Result{}, toolerr.NewGit("status", strings.TrimSpace(stderr), err)
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	branch := ""
	changes := 0
	for _, l := range lines {
		if rest, ok := strings.CutPrefix(l, "## "); ok {
			branch = rest
		} else if l != "" {
			changes++
		}
	}
	return tool.Succeeded(stdout, map[string]any{
		"branch":  branch,
		"changes": changes,
		"clean":   changes == 0,
	}), nil
}

// run executes args in dir, bounded by timeout.
func (c *Commands) run(ctx context.Context, dir string, timeout time.Duration, args ...string) (stdout, stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	c.logger.Debug("running command", "program", args[0], "dir", dir, "timeout", timeout)
	err = cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = errors.Join(err, ctx.Err())
	}
	return out.String(), errOut.String(), err
}

// commandError classifies a failed command. parent is the caller's context,
// so only our own timeout becomes a Timeout here.
func (c *Commands) commandError(parent context.Context, command string, timeout time.Duration, stderr string, err error) error {
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return toolerr.NewTimeout(command, timeout, err)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return toolerr.NewToolNotFound(strings.Fields(command)[0])
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return toolerr.NewExternalCommand(command, &code, strings.TrimSpace(stderr), err)
	}
	return toolerr.NewExternalCommand(command, nil, strings.TrimSpace(stderr), err)
}
