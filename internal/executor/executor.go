// Package executor is the single entry point for running commands on behalf
// of a client. It confines the working directory, classifies the command and
// dispatches it either to a one-shot run or to an interactive session.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jkaninda/shellguard/internal/classifier"
	"github.com/jkaninda/shellguard/internal/sandbox"
	"github.com/jkaninda/shellguard/internal/session"
)

// PathConfiner proves a path lies under a whitelist root.
type PathConfiner interface {
	AssertConfined(ctx context.Context, candidate, base string) (string, error)
}

// CommandClassifier decides between one-shot and interactive execution.
type CommandClassifier interface {
	Classify(line string) classifier.Classification
}

// Sessions is the subset of *session.Registry the executor drives.
type Sessions interface {
	Create(ctx context.Context, dir, shell string, env map[string]string) (string, error)
	Write(ctx context.Context, id, input string) (string, error)
}

// Recorder receives every completed (or failed) execution.
type Recorder interface {
	RecordExecution(ctx context.Context, req Request, res *Result, err error)
}

// Request describes one execution.
type Request struct {
	WorkingDirectory string
	Command          string
	Args             []string
	Env              map[string]string
	Shell            string

	// ForceInteractive skips classification and routes to a session.
	ForceInteractive bool

	// SessionID reuses an existing session instead of creating one. Implies
	// interactive execution.
	SessionID string

	// Timeout bounds one-shot runs. Ignored for sessions.
	Timeout time.Duration
}

// Result is the outcome of Execute. For interactive runs Stdout holds the
// drained session output and SessionID identifies the session, which stays
// open for further input.
type Result struct {
	Stdout           string        `json:"stdout"`
	Stderr           string        `json:"stderr"`
	ExitCode         int           `json:"exitCode"`
	Interactive      bool          `json:"interactive"`
	SessionID        string        `json:"sessionId,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	WorkingDirectory string        `json:"workingDirectory"`
	Duration         time.Duration `json:"-"`
}

// Executor wires confinement, classification and the two execution paths.
type Executor struct {
	confiner   PathConfiner
	classifier CommandClassifier
	runner     sandbox.Runner
	sessions   Sessions
	recorder   Recorder
	logger     *slog.Logger
}

// New creates an Executor. recorder may be nil.
func New(confiner PathConfiner, cls CommandClassifier, runner sandbox.Runner, sessions Sessions, recorder Recorder, logger *slog.Logger) *Executor {
	return &Executor{
		confiner:   confiner,
		classifier: cls,
		runner:     runner,
		sessions:   sessions,
		recorder:   recorder,
		logger:     logger,
	}
}

// Execute runs req. A working directory outside the whitelist is rejected
// before any process is touched. A non-zero exit status is reported in the
// result, not as an error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	res, err := e.execute(ctx, req)
	if e.recorder != nil {
		e.recorder.RecordExecution(ctx, req, res, err)
	}
	return res, err
}

func (e *Executor) execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, fmt.Errorf("command must not be empty")
	}

	dir, err := e.confiner.AssertConfined(ctx, req.WorkingDirectory, "")
	if err != nil {
		e.logger.WarnContext(ctx, "execution rejected",
			slog.String("working_directory", req.WorkingDirectory),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	line := commandLine(req.Command, req.Args)

	var interactive bool
	var reason string
	switch {
	case req.SessionID != "":
		interactive, reason = true, "existing session"
	case req.ForceInteractive:
		interactive, reason = true, "forced by caller"
	default:
		c := e.classifier.Classify(line)
		interactive, reason = c.Interactive, c.Reason
	}

	if interactive {
		return e.interactive(ctx, req, dir, line, reason)
	}

	start := time.Now()
	out, err := e.runner.Run(ctx, sandbox.ExecutionRequest{
		Command: req.Command,
		Args:    req.Args,
		Dir:     dir,
		Env:     req.Env,
		Shell:   req.Shell,
		Timeout: req.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Stdout:           out.Stdout,
		Stderr:           out.Stderr,
		ExitCode:         out.ExitCode,
		Reason:           reason,
		WorkingDirectory: dir,
		Duration:         time.Since(start),
	}, nil
}

// interactive writes line to an existing or new session. The session is
// left running either way.
func (e *Executor) interactive(ctx context.Context, req Request, dir, line, reason string) (*Result, error) {
	start := time.Now()
	id := req.SessionID
	if id == "" {
		var err error
		id, err = e.sessions.Create(ctx, dir, req.Shell, req.Env)
		if err != nil {
			return nil, err
		}
	}

	out, err := e.sessions.Write(ctx, id, line)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "interactive execution",
		slog.String("session_id", id),
		slog.String("reason", reason),
		slog.Int("output_bytes", len(out)),
	)
	return &Result{
		Stdout:           out,
		Interactive:      true,
		SessionID:        id,
		Reason:           reason,
		WorkingDirectory: dir,
		Duration:         time.Since(start),
	}, nil
}

func commandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

var _ Sessions = (*session.Registry)(nil)
