// Package sandbox confines filesystem paths to approved roots and runs
// one-shot shell commands inside them.
//
// Nothing here filters syscalls or enforces quotas. The guarantees are that
// every path handed to a filesystem or process primitive has been proven to
// resolve under a whitelist root, and that every process started is killed
// together with its descendants when its owner gives up on it.
package sandbox

import (
	"context"
	"time"
)

// Runner executes a single command to completion.
type Runner interface {
	Run(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// ExecutionRequest defines what to run and where.
type ExecutionRequest struct {
	// Command is the command line handed to the shell, e.g. "ls -la | wc -l".
	Command string

	// Args are appended as positional parameters, so they reach the command
	// unquoted and are never re-parsed by the shell.
	Args []string

	// Dir is the process working directory. Callers must confine it first.
	Dir string

	// Env is merged on top of the inherited environment.
	Env map[string]string

	// Shell overrides the runner's shell for this request.
	Shell string

	// Timeout bounds the run. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// ExecutionResult captures the outcome of a one-shot command.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}
