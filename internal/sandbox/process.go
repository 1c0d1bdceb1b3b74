package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// defaultMaxOutputBytes caps stdout/stderr to prevent OOM from chatty commands.
const defaultMaxOutputBytes = 1 << 20 // 1 MB

// ProcessConfig configures the one-shot runner.
type ProcessConfig struct {
	Shell          string        // empty selects DefaultShell
	DefaultTimeout time.Duration // zero means no limit
	MaxOutputBytes int           // per stream; zero selects 1 MB
}

// ProcessRunner executes commands as child processes of the server.
//
//   - The command runs through the configured shell in the confined directory
//   - The environment is inherited, with request overrides applied on top
//   - The whole process tree is killed on timeout or cancel
//   - stdout/stderr are capped per stream
type ProcessRunner struct {
	shell          string
	defaultTimeout time.Duration
	maxOutput      int
	procs          ProcessController
	logger         *slog.Logger
}

// NewProcessRunner creates a ProcessRunner.
func NewProcessRunner(cfg ProcessConfig, procs ProcessController, logger *slog.Logger) *ProcessRunner {
	shell := cfg.Shell
	if shell == "" {
		shell = DefaultShell()
	}
	maxOut := cfg.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = defaultMaxOutputBytes
	}
	if procs == nil {
		procs = NewProcessController()
	}
	return &ProcessRunner{
		shell:          shell,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutput:      maxOut,
		procs:          procs,
		logger:         logger,
	}
}

// Shell returns the shell used when a request does not override it.
func (r *ProcessRunner) Shell() string { return r.shell }

// Run executes req.Command to completion. A non-zero exit status is reported
// in the result, not as an error.
func (r *ProcessRunner) Run(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if req.Command == "" {
		return nil, fmt.Errorf("empty command")
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell := req.Shell
	if shell == "" {
		shell = r.shell
	}
	argv := OneShotArgv(shell, req.Command, req.Args)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = MergeEnv(os.Environ(), req.Env)
	r.procs.Prepare(cmd)
	KillOnCancel(r.procs, cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: r.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: r.maxOutput}

	r.logger.Info("executing command",
		slog.String("command", req.Command),
		slog.Int("args", len(req.Args)),
		slog.String("dir", cmd.Dir),
		slog.String("shell", shell),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessSpawn, shell, err)
	}
	runErr := cmd.Wait()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			r.logger.Warn("command canceled",
				slog.Duration("timeout", timeout),
				slog.Duration("duration", duration),
				slog.String("cause", ctx.Err().Error()),
			)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("execution timed out after %s", timeout)
			}
			return nil, fmt.Errorf("execution canceled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if !errors.Is(runErr, exec.ErrWaitDelay) {
			return nil, fmt.Errorf("execution failed: %w", runErr)
		}
	}

	r.logger.Info("command completed",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)

	return &ExecutionResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is discarded but reported as written, so the copying goroutine
// in os/exec never sees a short write.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.remaining <= 0 {
		return n, nil
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
