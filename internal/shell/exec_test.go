package shell

import (
	"context"
	"strings"
	"testing"
	"time"

	apperrors "github.com/tabterm/host/internal/errors"
)

func TestHostRunnerCapturesStdout(t *testing.T) {
	r := NewHostRunner(5 * time.Second)

	res, err := r.Execute(context.Background(), "echo", []string{"hello"}, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "hello" {
		t.Errorf("Stdout = %q, want %q", got, "hello")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestHostRunnerNonZeroExitIsNotAnError(t *testing.T) {
	r := NewHostRunner(5 * time.Second)

	res, err := r.Execute(context.Background(), "false", nil, t.TempDir())
	if err != nil {
		t.Fatalf("Execute(false) error = %v, want nil", err)
	}
	if res.ExitCode == 0 {
		t.Error("ExitCode = 0, want non-zero")
	}
}

func TestHostRunnerMissingBinary(t *testing.T) {
	r := NewHostRunner(5 * time.Second)

	_, err := r.Execute(context.Background(), "definitely-not-a-command-xyz", nil, t.TempDir())
	if !apperrors.IsCode(err, apperrors.CodeDispatchUnknownCommand) {
		t.Errorf("error code = %q, want %q", apperrors.GetCode(err), apperrors.CodeDispatchUnknownCommand)
	}
}

func TestHostRunnerTimeout(t *testing.T) {
	r := NewHostRunner(100 * time.Millisecond)

	start := time.Now()
	_, err := r.Execute(context.Background(), "sleep", []string{"5"}, t.TempDir())
	elapsed := time.Since(start)

	if !apperrors.IsCode(err, apperrors.CodeDispatchTimeout) {
		t.Errorf("error code = %q, want %q", apperrors.GetCode(err), apperrors.CodeDispatchTimeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout took %s, process was not killed promptly", elapsed)
	}
}

func TestHostRunnerBlocklist(t *testing.T) {
	r := NewHostRunner(5 * time.Second)

	for _, name := range []string{"sudo", "shutdown", "dd"} {
		_, err := r.Execute(context.Background(), name, nil, t.TempDir())
		if !apperrors.IsCode(err, apperrors.CodeDispatchBlocked) {
			t.Errorf("Execute(%s) code = %q, want %q", name, apperrors.GetCode(err), apperrors.CodeDispatchBlocked)
		}
	}
}

func TestHostRunnerBlockedArguments(t *testing.T) {
	r := NewHostRunner(5 * time.Second)

	_, err := r.Execute(context.Background(), "echo", []string{"of=/dev/sda"}, t.TempDir())
	if !apperrors.IsCode(err, apperrors.CodeDispatchBlocked) {
		t.Errorf("error code = %q, want %q", apperrors.GetCode(err), apperrors.CodeDispatchBlocked)
	}
}

func TestHostRunnerRunsInWorkingDirectory(t *testing.T) {
	r := NewHostRunner(5 * time.Second)
	dir := t.TempDir()

	res, err := r.Execute(context.Background(), "pwd", nil, dir)
	if err != nil {
		t.Fatalf("Execute(pwd) error = %v", err)
	}
	// Resolve symlinks on platforms where TempDir is a symlink target.
	if got := strings.TrimSpace(res.Stdout); !strings.HasSuffix(got, dir) && got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}
