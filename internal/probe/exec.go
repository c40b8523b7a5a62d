package probe

import (
	"context"
	"os/exec"
)

// CommandRunner runs an external command and returns its combined output.
// Probes take one so tests can substitute canned output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec, killing them when ctx ends
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
