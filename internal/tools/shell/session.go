package shell

import (
	"context"
	"log/slog"

	"github.com/jkaninda/shellguard/internal/session"
	"github.com/jkaninda/shellguard/internal/tools"
)

// NoOutput is returned in place of an empty drain.
const NoOutput = "(no output)"

// Sessions is the subset of *session.Registry the session tools use.
type Sessions interface {
	Create(ctx context.Context, dir, shell string, env map[string]string) (string, error)
	Write(ctx context.Context, id, input string) (string, error)
	Terminate(ctx context.Context, id string) error
	List() []session.Info
}

// ---- CreateSessionTool ----

// CreateSessionTool starts an interactive shell in a whitelisted directory.
type CreateSessionTool struct {
	confiner tools.PathConfiner
	sessions Sessions
	logger   *slog.Logger
}

func NewCreateSessionTool(confiner tools.PathConfiner, sessions Sessions, logger *slog.Logger) *CreateSessionTool {
	return &CreateSessionTool{confiner: confiner, sessions: sessions, logger: logger}
}

func (t *CreateSessionTool) Name() string        { return "createInteractiveSession" }
func (t *CreateSessionTool) Description() string { return "Create an interactive shell session" }
func (t *CreateSessionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cwd":   map[string]any{"type": "string", "description": "Working directory"},
			"shell": map[string]any{"type": "string", "description": "Specify shell to use"},
			"env":   map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "Environment variables"},
		},
		"required": []string{"cwd"},
	}
}

func (t *CreateSessionTool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "cwd"); err != nil {
		return err
	}
	if _, err := tools.OptionalString(params, "shell"); err != nil {
		return err
	}
	_, err := tools.OptionalStringMap(params, "env")
	return err
}

func (t *CreateSessionTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	cwd, _ := tools.RequireString(params, "cwd")
	shell, _ := tools.OptionalString(params, "shell")
	env, _ := tools.OptionalStringMap(params, "env")

	dir, err := t.confiner.AssertConfined(ctx, cwd, "")
	if err != nil {
		return nil, err
	}
	id, err := t.sessions.Create(ctx, dir, shell, env)
	if err != nil {
		return nil, err
	}
	return tools.OK("Session created", map[string]any{"sessionId": id, "cwd": dir}), nil
}

// ---- WriteSessionTool ----

// WriteSessionTool sends input to a session and returns the output it produced.
type WriteSessionTool struct {
	sessions Sessions
	logger   *slog.Logger
}

func NewWriteSessionTool(sessions Sessions, logger *slog.Logger) *WriteSessionTool {
	return &WriteSessionTool{sessions: sessions, logger: logger}
}

func (t *WriteSessionTool) Name() string        { return "writeToSession" }
func (t *WriteSessionTool) Description() string { return "Write input to interactive session" }
func (t *WriteSessionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string", "description": "Session ID"},
			"input":     map[string]any{"type": "string", "description": "Input to send; a trailing newline is added if missing"},
		},
		"required": []string{"sessionId", "input"},
	}
}

func (t *WriteSessionTool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "sessionId"); err != nil {
		return err
	}
	// Empty input is allowed: it sends a bare newline.
	_, err := tools.OptionalString(params, "input")
	return err
}

func (t *WriteSessionTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sessionId")
	input, _ := tools.OptionalString(params, "input")

	out, err := t.sessions.Write(ctx, id, input)
	if err != nil {
		return nil, err
	}
	if out == "" {
		out = NoOutput
	}
	return tools.OK("Input sent", map[string]any{
		"sessionId": id,
		"output":    tools.TruncateOutput(out, tools.MaxOutputBytes),
	}), nil
}

// ---- TerminateSessionTool ----

// TerminateSessionTool kills a session and its descendants.
type TerminateSessionTool struct {
	sessions Sessions
	logger   *slog.Logger
}

func NewTerminateSessionTool(sessions Sessions, logger *slog.Logger) *TerminateSessionTool {
	return &TerminateSessionTool{sessions: sessions, logger: logger}
}

func (t *TerminateSessionTool) Name() string        { return "terminateSession" }
func (t *TerminateSessionTool) Description() string { return "Terminate interactive session" }
func (t *TerminateSessionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string", "description": "Session ID"},
		},
		"required": []string{"sessionId"},
	}
}

func (t *TerminateSessionTool) Validate(params map[string]any) error {
	_, err := tools.RequireString(params, "sessionId")
	return err
}

func (t *TerminateSessionTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.RequireString(params, "sessionId")
	if err := t.sessions.Terminate(ctx, id); err != nil {
		// The session is retired even when the kill reports an error.
		t.logger.WarnContext(ctx, "terminate reported an error",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
	return tools.OK("Session terminated", map[string]any{"sessionId": id}), nil
}

// ---- ListSessionsTool ----

// ListSessionsTool reports the live sessions.
type ListSessionsTool struct {
	sessions Sessions
}

func NewListSessionsTool(sessions Sessions) *ListSessionsTool {
	return &ListSessionsTool{sessions: sessions}
}

func (t *ListSessionsTool) Name() string        { return "listSessions" }
func (t *ListSessionsTool) Description() string { return "List live interactive sessions" }
func (t *ListSessionsTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *ListSessionsTool) Validate(map[string]any) error { return nil }

func (t *ListSessionsTool) Execute(context.Context, map[string]any) (*tools.Result, error) {
	return tools.OK("Sessions retrieved", t.sessions.List()), nil
}
