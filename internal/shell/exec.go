package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/tabterm/host/internal/errors"
)

// ExecResult is the captured outcome of a host process invocation.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command as a host process. The interface exists so
// the dispatcher can be tested without spawning real processes.
type Runner interface {
	Execute(ctx context.Context, name string, args []string, cwd string) (ExecResult, error)
}

// blockedCommands are names refused outright regardless of arguments.
// The list targets commands that can wedge or destroy the host, not
// commands that are merely destructive within the working tree (rm has
// its own guards in the navigator).
var blockedCommands = map[string]bool{
	"sudo":     true,
	"su":       true,
	"shutdown": true,
	"reboot":   true,
	"halt":     true,
	"poweroff": true,
	"mkfs":     true,
	"dd":       true,
	"chown":    true,
	"passwd":   true,
}

// blockedArgPatterns reject specific dangerous argument shapes even for
// otherwise permitted commands.
var blockedArgPatterns = []string{
	":(){", // fork bomb
	"/dev/sd",
	"/dev/nvme",
}

// HostRunner executes commands via os/exec with a hard timeout and
// output capture. Each invocation is one-shot: no shell, no pipeline,
// no interactivity.
type HostRunner struct {
	// Timeout bounds each invocation. Zero means DefaultExecTimeout.
	Timeout time.Duration
}

// DefaultExecTimeout is applied when HostRunner.Timeout is zero.
const DefaultExecTimeout = 10 * time.Second

// maxCapturedOutput bounds how much of each stream is returned to the
// client. Processes can still write more; the excess is truncated with
// a marker.
const maxCapturedOutput = 256 * 1024

// NewHostRunner creates a runner with the given timeout.
func NewHostRunner(timeout time.Duration) *HostRunner {
	return &HostRunner{Timeout: timeout}
}

// Execute runs name with args in cwd and captures both streams.
//
// A command on the blocklist fails with dispatch.blocked before any
// process is spawned. A missing binary fails with
// dispatch.unknown_command so the client can render a did-you-mean.
// Exceeding the timeout kills the process and fails with
// dispatch.timeout. A non-zero exit is NOT an error at this layer:
// the result carries the exit code and stderr and the dispatcher
// decides how to present it.
func (r *HostRunner) Execute(ctx context.Context, name string, args []string, cwd string) (ExecResult, error) {
	if blockedCommands[name] {
		return ExecResult{}, apperrors.Newf(apperrors.CodeDispatchBlocked, "command '%s' is not permitted", name)
	}
	for _, arg := range args {
		for _, pat := range blockedArgPatterns {
			if strings.Contains(arg, pat) {
				return ExecResult{}, apperrors.Newf(apperrors.CodeDispatchBlocked, "argument '%s' is not permitted", arg)
			}
		}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return ExecResult{}, apperrors.Newf(apperrors.CodeDispatchTimeout, "command '%s' timed out after %s", name, timeout)
	}

	result := ExecResult{
		Stdout: truncateOutput(stdout.String()),
		Stderr: truncateOutput(stderr.String()),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return ExecResult{}, apperrors.Newf(apperrors.CodeDispatchUnknownCommand, "command not found: %s", name)
		}
		return ExecResult{}, apperrors.Wrap(apperrors.CodeDispatchExecFailed, "failed to run "+name, err)
	}

	return result, nil
}

func truncateOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + "\n... (output truncated)"
}
