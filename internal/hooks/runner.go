// Package hooks runs operator shell commands around a backup run. A failing
// pre hook fails the step it runs in; post hook failures are only logged.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	constants "vpsdash/config"
)

// DefaultTimeout bounds a hook when the runner has none configured
const DefaultTimeout = constants.DEFAULT_HOOK_TIMEOUT * time.Second

// ErrHookFailed wraps a non-zero exit or a timeout
var ErrHookFailed = errors.New("hook: command failed")

// Result is the outcome of one hook execution
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner executes hook commands through /bin/sh
type Runner struct {
	Timeout time.Duration
	// Env is appended to the inherited environment of every hook
	Env []string
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Timeout: timeout}
}

// Run executes command. An empty command is a no-op success. The Result is
// populated even when an error is returned so the output can be logged.
func (r *Runner) Run(ctx context.Context, command string, env ...string) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return &Result{}, nil
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = append(append(cmd.Environ(), r.Env...), env...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Output:   strings.TrimSpace(buf.String()),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	res.ExitCode = 1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%w: %w", ErrHookFailed, ctx.Err())
	}
	return res, fmt.Errorf("%w: exit code %d", ErrHookFailed, res.ExitCode)
}
