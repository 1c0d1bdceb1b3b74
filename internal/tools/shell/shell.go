// Package shell implements the command execution and interactive session tools.
// All commands run through the executor, which confines the working directory
// before any process is started.
package shell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkaninda/shellguard/internal/executor"
	"github.com/jkaninda/shellguard/internal/tools"
)

// Executor runs a command after confinement and classification.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// ExecuteTool runs a command in a whitelisted directory.
type ExecuteTool struct {
	exec   Executor
	logger *slog.Logger
}

// NewExecuteTool creates the executeCommand tool.
func NewExecuteTool(exec Executor, logger *slog.Logger) *ExecuteTool {
	return &ExecuteTool{exec: exec, logger: logger}
}

func (t *ExecuteTool) Name() string { return "executeCommand" }
func (t *ExecuteTool) Description() string {
	return "Execute a shell command in a whitelisted working directory. " +
		"Interactive programs (editors, REPLs, pagers, remote shells) are started in a session " +
		"whose id is returned for use with writeToSession."
}
func (t *ExecuteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"workingDirectory": map[string]any{"type": "string", "description": "Working directory for command execution"},
			"command":          map[string]any{"type": "string", "description": "Shell command to execute"},
			"args":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Command arguments, passed without shell re-parsing"},
			"env":              map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "Environment variables to set"},
			"shell":            map[string]any{"type": "string", "description": "Shell override"},
			"forceInteractive": map[string]any{"type": "boolean", "description": "Run in an interactive session regardless of classification"},
			"sessionId":        map[string]any{"type": "string", "description": "Send the command to this existing session"},
			"timeout":          map[string]any{"type": "string", "description": "Duration string (e.g. '10s', '1m') bounding a one-shot run"},
		},
		"required": []string{"workingDirectory", "command"},
	}
}

func (t *ExecuteTool) Validate(params map[string]any) error {
	_, err := parseRequest(params)
	return err
}

func (t *ExecuteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	req, err := parseRequest(params)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "executeCommand",
		slog.String("command", req.Command),
		slog.String("working_directory", req.WorkingDirectory),
	)

	res, err := t.exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Stdout = tools.TruncateOutput(res.Stdout, tools.MaxOutputBytes)
	res.Stderr = tools.TruncateOutput(res.Stderr, tools.MaxOutputBytes)

	switch {
	case res.Interactive:
		return tools.OK("Command sent to interactive session "+res.SessionID, res), nil
	case res.ExitCode == 0:
		return tools.OK("Command executed successfully", res), nil
	default:
		// A failing command is a successful call: the client gets the output.
		return tools.OK(fmt.Sprintf("Command exited with code %d", res.ExitCode), res), nil
	}
}

func parseRequest(params map[string]any) (executor.Request, error) {
	var req executor.Request
	var err error
	if req.WorkingDirectory, err = tools.RequireString(params, "workingDirectory"); err != nil {
		return req, err
	}
	if req.Command, err = tools.RequireString(params, "command"); err != nil {
		return req, err
	}
	if req.Args, err = tools.OptionalStringSlice(params, "args"); err != nil {
		return req, err
	}
	if req.Env, err = tools.OptionalStringMap(params, "env"); err != nil {
		return req, err
	}
	if req.Shell, err = tools.OptionalString(params, "shell"); err != nil {
		return req, err
	}
	if req.ForceInteractive, err = tools.OptionalBool(params, "forceInteractive"); err != nil {
		return req, err
	}
	if req.SessionID, err = tools.OptionalString(params, "sessionId"); err != nil {
		return req, err
	}
	if req.Timeout, err = tools.OptionalDuration(params, "timeout"); err != nil {
		return req, err
	}
	return req, nil
}
