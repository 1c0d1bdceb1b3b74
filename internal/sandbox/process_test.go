//go:build unix

package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestRunner(cfg ProcessConfig) *ProcessRunner {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	return NewProcessRunner(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProcessRunner_Echo(t *testing.T) {
	r := newTestRunner(ProcessConfig{})
	res, err := r.Run(context.Background(), ExecutionRequest{Command: "echo hi", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "hi\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "hi\n")
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestProcessRunner_NonZeroExitIsResult(t *testing.T) {
	r := newTestRunner(ProcessConfig{})
	res, err := r.Run(context.Background(), ExecutionRequest{Command: "echo oops >&2; exit 3", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Stderr != "oops\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestProcessRunner_WorkingDirAndEnv(t *testing.T) {
	dir := resolved(t)
	r := newTestRunner(ProcessConfig{})
	res, err := r.Run(context.Background(), ExecutionRequest{
		Command: `pwd; echo "$GREETING"`,
		Dir:     dir,
		Env:     map[string]string{"GREETING": "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := dir + "\nhello\n"
	if res.Stdout != want {
		t.Errorf("stdout = %q, want %q", res.Stdout, want)
	}
}

func TestProcessRunner_ArgsNotReparsed(t *testing.T) {
	r := newTestRunner(ProcessConfig{})
	res, err := r.Run(context.Background(), ExecutionRequest{
		Command: "printf '%s\\n'",
		Args:    []string{"a; echo injected", "$(id)"},
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "a; echo injected\n$(id)\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestProcessRunner_Timeout(t *testing.T) {
	r := newTestRunner(ProcessConfig{})
	start := time.Now()
	_, err := r.Run(context.Background(), ExecutionRequest{
		Command: "sleep 30 & sleep 30; wait",
		Dir:     t.TempDir(),
		Timeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("process tree not killed promptly: %s", elapsed)
	}
}

func TestProcessRunner_OutputCapped(t *testing.T) {
	r := newTestRunner(ProcessConfig{MaxOutputBytes: 10})
	res, err := r.Run(context.Background(), ExecutionRequest{
		Command: "printf '0123456789abcdef'",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "0123456789" {
		t.Errorf("stdout = %q, want first 10 bytes", res.Stdout)
	}
}

func TestProcessRunner_SpawnFailure(t *testing.T) {
	r := newTestRunner(ProcessConfig{Shell: "/nonexistent/shell"})
	_, err := r.Run(context.Background(), ExecutionRequest{Command: "true", Dir: t.TempDir()})
	if !errors.Is(err, ErrProcessSpawn) {
		t.Fatalf("err = %v, want ErrProcessSpawn", err)
	}
}

func TestProcessRunner_EmptyCommand(t *testing.T) {
	r := newTestRunner(ProcessConfig{})
	if _, err := r.Run(context.Background(), ExecutionRequest{Dir: t.TempDir()}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestProcessController_KillExited(t *testing.T) {
	if err := NewProcessController().Kill(nil); err != nil {
		t.Errorf("Kill(nil) = %v", err)
	}
}
