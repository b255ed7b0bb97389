// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands to
// completion. This abstraction allows mocking command execution in tests.
// Long-lived streaming processes are handled by the orchestrator's worker,
// not through this interface.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// LookPath reports whether the named binary can be found in PATH.
	LookPath(name string) (string, error)
}
