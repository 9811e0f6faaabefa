package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/inkgate/inkgate/internal/logging"
)

const (
	// DefaultCommandTimeout applies when the caller does not specify one.
	DefaultCommandTimeout = 10 * time.Second
	// MaxCommandTimeout is the hard cap on any single command.
	MaxCommandTimeout = 60 * time.Second
)

// Bash executes a shell command with a bounded timeout. Dangerous
// command patterns are rejected by the security gate before a call can
// ever reach this executor.
type Bash struct {
	// WorkDir is the directory commands run in, normally the
	// workspace root.
	WorkDir string
}

func (Bash) Name() string { return "bash" }

func (Bash) Description() string {
	return "Execute a bash command. Only use this for safe, non-destructive commands like ls, git status, cat, etc. Dangerous commands (rm, sudo, chmod, dd, curl, wget, kill) are automatically blocked."
}

func (Bash) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The bash command to execute (e.g., 'ls -la', 'git status', 'cat file.txt')",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Maximum execution time in seconds (default: 10, max: 60)",
				"minimum":     1,
				"maximum":     60,
			},
		},
		"required": []any{"command"},
	}
}

func (t Bash) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	command, ok := stringArg(args, "command")
	if !ok {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: errors.New("missing command")}
	}

	timeout := DefaultCommandTimeout
	if secs, ok := numberArg(args, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > MaxCommandTimeout {
		timeout = MaxCommandTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.WorkDir
	// Run the shell in its own process group and kill the whole group on
	// timeout. Killing only the shell would leave children alive holding
	// the output pipes, and Run would block until they exit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		logging.Warn("tool: command timed out after %s: %s", timeout, command)
		return nil, &ExecError{Tool: t.Name(), Kind: ErrTimeout,
			Err: fmt.Errorf("command timed out after %s", timeout)}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logging.Warn("tool: command failed with exit code %d: %s", exitErr.ExitCode(), command)
			return nil, &ExecError{Tool: t.Name(), Kind: ErrExit,
				Err: fmt.Errorf("command failed with exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))}
		}
		return nil, &ExecError{Tool: t.Name(), Kind: ErrIO, Err: fmt.Errorf("failed to execute command: %w", err)}
	}

	logging.Info("tool: command executed successfully: %s", command)
	return &Result{Content: fmt.Sprintf("Command executed successfully:\n\n%s", strings.TrimSpace(stdout.String()))}, nil
}
