// Package file implements the thin filesystem tools.
//
// Every path argument is confined against the whitelist, relative to the
// caller's workingDirectory, before any I/O occurs. The working directory
// itself must be confined too.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jkaninda/shellguard/internal/tools"
)

// Config configures the file tools.
type Config struct {
	MaxFileSizeBytes int64 // Maximum file size for read/write. 0 = 10 MB default.
}

const defaultMaxFileSize = 10 << 20 // 10 MB

func (c Config) maxSize() int64 {
	if c.MaxFileSizeBytes > 0 {
		return c.MaxFileSizeBytes
	}
	return defaultMaxFileSize
}

// base carries what every file tool needs.
type base struct {
	confiner tools.PathConfiner
	config   Config
	logger   *slog.Logger
}

// resolve confines the path stored under key relative to workingDirectory.
func (b base) resolve(ctx context.Context, params map[string]any, key string) (string, error) {
	wd, err := tools.RequireString(params, "workingDirectory")
	if err != nil {
		return "", err
	}
	p, err := tools.RequireString(params, key)
	if err != nil {
		return "", err
	}
	return b.confiner.AssertConfined(ctx, p, wd)
}

func requireParams(params map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, err := tools.RequireString(params, k); err != nil {
			return err
		}
	}
	return nil
}

func pathSchema(extra map[string]any, required ...string) map[string]any {
	props := map[string]any{
		"workingDirectory": map[string]any{"type": "string", "description": "Working directory for the operation; relative paths resolve against it"},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"workingDirectory"}, required...),
	}
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

// NewTools returns every file tool sharing one confiner.
func NewTools(confiner tools.PathConfiner, cfg Config, logger *slog.Logger) []tools.Tool {
	b := base{confiner: confiner, config: cfg, logger: logger}
	return []tools.Tool{
		&ReadTool{b}, &WriteTool{b}, &CopyTool{b}, &MoveTool{b}, &DeleteTool{b},
		&CreateDirTool{b}, &RemoveDirTool{b}, &ListDirTool{b},
		&SearchByNameTool{b}, &SearchByContentTool{b},
	}
}

// ---- ReadTool ----

type ReadTool struct{ base }

func (t *ReadTool) Name() string { return "readFile" }
func (t *ReadTool) Description() string {
	return "Read the contents of a file within a whitelisted directory"
}
func (t *ReadTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{"path": str("File path")}, "path")
}
func (t *ReadTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "path")
}

func (t *ReadTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := t.resolve(ctx, params, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, use listDirectory", path)
	}
	if info.Size() > t.config.maxSize() {
		return nil, fmt.Errorf("file size %d exceeds limit %d bytes", info.Size(), t.config.maxSize())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	t.logger.InfoContext(ctx, "readFile", slog.String("path", path), slog.Int64("size_bytes", info.Size()))
	return tools.OK("File read successfully", map[string]any{
		"path":    path,
		"content": tools.TruncateOutput(string(data), tools.MaxOutputBytes),
	}), nil
}

// ---- WriteTool ----

type WriteTool struct{ base }

func (t *WriteTool) Name() string { return "writeFile" }
func (t *WriteTool) Description() string {
	return "Write content to a file within a whitelisted directory"
}
func (t *WriteTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{
		"path":    str("File path"),
		"content": str("Content to write"),
	}, "path", "content")
}

func (t *WriteTool) Validate(params map[string]any) error {
	if err := requireParams(params, "workingDirectory", "path"); err != nil {
		return err
	}
	content, ok := params["content"].(string)
	if !ok {
		return fmt.Errorf("missing required parameter: content")
	}
	if int64(len(content)) > t.config.maxSize() {
		return fmt.Errorf("content size %d exceeds limit %d bytes", len(content), t.config.maxSize())
	}
	return nil
}

func (t *WriteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := t.resolve(ctx, params, "path")
	if err != nil {
		return nil, err
	}
	content, _ := params["content"].(string)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	t.logger.InfoContext(ctx, "writeFile", slog.String("path", path), slog.Int("content_size", len(content)))
	return tools.OK("File written successfully", map[string]any{"path": path, "bytes": len(content)}), nil
}

// ---- CopyTool ----

type CopyTool struct{ base }

func (t *CopyTool) Name() string        { return "copyFile" }
func (t *CopyTool) Description() string { return "Copy a file; both paths must be whitelisted" }
func (t *CopyTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{
		"source":      str("Source file path"),
		"destination": str("Destination file path"),
	}, "source", "destination")
}
func (t *CopyTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "source", "destination")
}

func (t *CopyTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	src, dst, err := t.pair(ctx, params)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = in.Close() }()
	info, err := in.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return nil, fmt.Errorf("opening destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("copying: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing destination: %w", err)
	}
	t.logger.InfoContext(ctx, "copyFile", slog.String("source", src), slog.String("destination", dst))
	return tools.OK("File copied successfully", map[string]any{"source": src, "destination": dst}), nil
}

// pair confines source and destination. Errors say which side failed.
func (b base) pair(ctx context.Context, params map[string]any) (string, string, error) {
	src, err := b.resolve(ctx, params, "source")
	if err != nil {
		return "", "", fmt.Errorf("source: %w", err)
	}
	dst, err := b.resolve(ctx, params, "destination")
	if err != nil {
		return "", "", fmt.Errorf("destination: %w", err)
	}
	return src, dst, nil
}

// ---- MoveTool ----

type MoveTool struct{ base }

func (t *MoveTool) Name() string { return "moveFile" }
func (t *MoveTool) Description() string {
	return "Move or rename a file; both paths must be whitelisted"
}
func (t *MoveTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{
		"source":      str("Source file path"),
		"destination": str("Destination file path"),
	}, "source", "destination")
}
func (t *MoveTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "source", "destination")
}

func (t *MoveTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	src, dst, err := t.pair(ctx, params)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, fmt.Errorf("moving: %w", err)
	}
	t.logger.InfoContext(ctx, "moveFile", slog.String("source", src), slog.String("destination", dst))
	return tools.OK("File moved successfully", map[string]any{"source": src, "destination": dst}), nil
}

// ---- DeleteTool ----

type DeleteTool struct{ base }

func (t *DeleteTool) Name() string        { return "deleteFile" }
func (t *DeleteTool) Description() string { return "Delete a file within a whitelisted directory" }
func (t *DeleteTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{"path": str("File path")}, "path")
}
func (t *DeleteTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "path")
}

func (t *DeleteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := t.resolve(ctx, params, "path")
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file does not exist: %s", path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, use removeDirectory", path)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("deleting %s: %w", path, err)
	}
	t.logger.InfoContext(ctx, "deleteFile", slog.String("path", path))
	return tools.OK("File deleted successfully", map[string]any{"path": path}), nil
}

// ---- CreateDirTool ----

type CreateDirTool struct{ base }

func (t *CreateDirTool) Name() string        { return "createDirectory" }
func (t *CreateDirTool) Description() string { return "Create a directory, including parents" }
func (t *CreateDirTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{"path": str("Directory path")}, "path")
}
func (t *CreateDirTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "path")
}

func (t *CreateDirTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := t.resolve(ctx, params, "path")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return tools.OK("Directory created successfully", map[string]any{"path": path}), nil
}

// ---- RemoveDirTool ----

type RemoveDirTool struct{ base }

func (t *RemoveDirTool) Name() string { return "removeDirectory" }
func (t *RemoveDirTool) Description() string {
	return "Recursively remove a directory within a whitelisted directory"
}
func (t *RemoveDirTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{"path": str("Directory path")}, "path")
}
func (t *RemoveDirTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "path")
}

func (t *RemoveDirTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := t.resolve(ctx, params, "path")
	if err != nil {
		return nil, err
	}
	// Refuse to delete a whitelist root itself; only things beneath it.
	if res := t.confiner.Confine(ctx, filepath.Dir(path), ""); !res.OK {
		return nil, fmt.Errorf("refusing to remove %s: it is a whitelisted root", path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("directory does not exist: %s", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("removing %s: %w", path, err)
	}
	t.logger.InfoContext(ctx, "removeDirectory", slog.String("path", path))
	return tools.OK("Directory removed successfully", map[string]any{"path": path}), nil
}

// ---- ListDirTool ----

type ListDirTool struct{ base }

// Entry is one row of a directory listing or search result.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
	Mode        string `json:"mode"`
}

func (t *ListDirTool) Name() string        { return "listDirectory" }
func (t *ListDirTool) Description() string { return "List the entries of a directory" }
func (t *ListDirTool) InputSchema() map[string]any {
	return pathSchema(map[string]any{"path": str("Directory path")}, "path")
}
func (t *ListDirTool) Validate(params map[string]any) error {
	return requireParams(params, "workingDirectory", "path")
}

func (t *ListDirTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, err := t.resolve(ctx, params, "path")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntry(filepath.Join(path, e.Name()), e))
	}
	return tools.OK("Directory listing retrieved successfully", map[string]any{"path": path, "files": out}), nil
}

func toEntry(path string, e fs.DirEntry) Entry {
	entry := Entry{Name: e.Name(), Path: path, IsDirectory: e.IsDir(), Mode: "-"}
	if info, err := e.Info(); err == nil {
		entry.Size = info.Size()
		entry.Mode = info.Mode().String()
	}
	return entry
}
