// Package whitelist implements the tools that inspect and edit the set of
// approved root directories, plus path validation against it.
package whitelist

import (
	"context"
	"log/slog"

	"github.com/jkaninda/shellguard/internal/tools"
)

// Store is the subset of *whitelist.Store the tools use.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// NewTools returns the whitelist management tools and validatePath.
func NewTools(store Store, confiner tools.PathConfiner, logger *slog.Logger) []tools.Tool {
	return []tools.Tool{
		&ListTool{store: store},
		&AddTool{store: store, logger: logger},
		&RemoveTool{store: store, logger: logger},
		&ValidatePathTool{confiner: confiner},
	}
}

func pathParam(desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": desc},
		},
		"required": []string{"path"},
	}
}

type ListTool struct{ store Store }

func (t *ListTool) Name() string        { return "getWhitelistedDirectories" }
func (t *ListTool) Description() string { return "Get the list of whitelisted directories" }
func (t *ListTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *ListTool) Validate(map[string]any) error { return nil }

func (t *ListTool) Execute(ctx context.Context, _ map[string]any) (*tools.Result, error) {
	dirs, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return tools.OK("Whitelisted directories retrieved", map[string]any{"directories": dirs}), nil
}

type AddTool struct {
	store  Store
	logger *slog.Logger
}

func (t *AddTool) Name() string                { return "addToWhitelist" }
func (t *AddTool) Description() string         { return "Add a directory to whitelist" }
func (t *AddTool) InputSchema() map[string]any { return pathParam("Path to add to whitelist") }
func (t *AddTool) Validate(params map[string]any) error {
	_, err := tools.RequireString(params, "path")
	return err
}

func (t *AddTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, _ := tools.RequireString(params, "path")
	if err := t.store.Add(ctx, path); err != nil {
		return nil, err
	}
	dirs, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return tools.OK("Directory added to whitelist", map[string]any{"directories": dirs}), nil
}

type RemoveTool struct {
	store  Store
	logger *slog.Logger
}

func (t *RemoveTool) Name() string                { return "removeFromWhitelist" }
func (t *RemoveTool) Description() string         { return "Remove a directory from whitelist" }
func (t *RemoveTool) InputSchema() map[string]any { return pathParam("Path to remove from whitelist") }
func (t *RemoveTool) Validate(params map[string]any) error {
	_, err := tools.RequireString(params, "path")
	return err
}

func (t *RemoveTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, _ := tools.RequireString(params, "path")
	if err := t.store.Remove(ctx, path); err != nil {
		return nil, err
	}
	dirs, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return tools.OK("Directory removed from whitelist", map[string]any{"directories": dirs}), nil
}

// ValidatePathTool reports whether a path is confined without touching it.
type ValidatePathTool struct{ confiner tools.PathConfiner }

// Validation is the data payload of validatePath.
type Validation struct {
	IsValid      bool   `json:"isValid"`
	AbsolutePath string `json:"absolutePath,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (t *ValidatePathTool) Name() string { return "validatePath" }
func (t *ValidatePathTool) Description() string {
	return "Check whether a path resolves inside a whitelisted directory"
}
func (t *ValidatePathTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"targetPath":       map[string]any{"type": "string", "description": "Target path to validate"},
			"workingDirectory": map[string]any{"type": "string", "description": "Base directory for relative target paths"},
		},
		"required": []string{"targetPath"},
	}
}

func (t *ValidatePathTool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "targetPath"); err != nil {
		return err
	}
	_, err := tools.OptionalString(params, "workingDirectory")
	return err
}

// Execute reports a rejected path as an unsuccessful result, not an error,
// so the payload still carries the reason.
func (t *ValidatePathTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	target, _ := tools.RequireString(params, "targetPath")
	wd, _ := tools.OptionalString(params, "workingDirectory")

	res := t.confiner.Confine(ctx, target, wd)
	if !res.OK {
		msg := res.Reason
		if res.Err != nil {
			msg = res.Err.Error()
		}
		return &tools.Result{
			Success: false,
			Message: "Path validation failed: " + msg,
			Data:    Validation{IsValid: false, Error: msg},
		}, nil
	}
	return tools.OK("Path validation successful", Validation{IsValid: true, AbsolutePath: res.CanonicalPath}), nil
}
