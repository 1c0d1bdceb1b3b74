// Package tools defines the tool interface and registry exposed to MCP clients.
// Every tool that touches the filesystem or spawns a process confines its
// paths through a PathConfiner before doing any I/O.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jkaninda/shellguard/internal/sandbox"
)

// Tool is the interface all tools must implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "executeCommand").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's parameters.
	InputSchema() map[string]any

	// Validate checks that params are well-formed. Called before Execute so
	// malformed requests fail without touching the filesystem.
	Validate(params map[string]any) error

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// PathConfiner is the confinement surface tools depend on.
// *sandbox.Confiner satisfies it.
type PathConfiner interface {
	Confine(ctx context.Context, candidate, base string) sandbox.ValidationResult
	AssertConfined(ctx context.Context, candidate, base string) (string, error)
}

// Result is the outcome of a tool execution. It is rendered to the client
// as indented JSON.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a successful Result.
func OK(message string, data any) *Result {
	return &Result{Success: true, Message: message, Data: data}
}

// ErrorResult converts err into a failed Result.
func ErrorResult(err error) *Result {
	return &Result{Success: false, Message: err.Error()}
}

// JSON renders r with two-space indentation.
func (r *Result) JSON() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		// Data held something unencodable; keep the envelope.
		data, _ = json.MarshalIndent(&Result{Success: r.Success, Message: r.Message}, "", "  ")
	}
	return string(data)
}

// MaxOutputBytes is the default cap for tool output to prevent OOM.
const MaxOutputBytes = 1 << 20 // 1 MB

// TruncateOutput caps a string at maxBytes, appending a truncation notice if cut.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const suffix = "\n... [output truncated]"
	if maxBytes <= len(suffix) {
		return s[:maxBytes]
	}
	return s[:maxBytes-len(suffix)] + suffix
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tools. Panics on duplicate names (startup config error, not runtime).
func (r *Registry) Register(ts ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		if _, exists := r.tools[t.Name()]; exists {
			panic("duplicate tool registration: " + t.Name())
		}
		r.tools[t.Name()] = t
	}
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(names))
	for _, n := range names {
		result = append(result, r.tools[n])
	}
	return result
}

// Call validates and executes the named tool. Every failure, including an
// unknown name, is folded into a failed Result so the transport can forward
// it verbatim.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) *Result {
	t := r.Get(name)
	if t == nil {
		return ErrorResult(fmt.Errorf("unknown tool: %s", name))
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := t.Validate(params); err != nil {
		return ErrorResult(err)
	}
	res, err := t.Execute(ctx, params)
	if err != nil {
		return ErrorResult(err)
	}
	return res
}
