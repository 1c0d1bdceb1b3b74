// Package workspace manages the shellguard state directory.
// The whitelist file, the history database and the default config file all
// live under a single root so one directory can be backed up or wiped.
//
// Default workspace: ~/.shellguard (configurable via config or SHELLGUARD_WORKSPACE env var).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default workspace location relative to user home directory.
const defaultRelativePath = ".shellguard"

// Workspace resolves the paths of shellguard's persistent state.
type Workspace struct {
	Root string
}

// New creates a Workspace rooted at the given path.
// It resolves ~ to the user's home directory and creates the root directory
// with 0700 permissions if it does not exist.
func New(root string) (*Workspace, error) {
	if root == "" {
		return Default()
	}
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %q: %w", root, err)
	}
	if err := os.MkdirAll(resolved, 0700); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	return &Workspace{Root: resolved}, nil
}

// Default creates a Workspace at ~/.shellguard.
func Default() (*Workspace, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return New(filepath.Join(home, defaultRelativePath))
}

// ConfigPath returns <root>/config.yaml.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.Root, "config.yaml")
}

// WhitelistPath returns <root>/whitelist.json.
func (w *Workspace) WhitelistPath() string {
	return filepath.Join(w.Root, "whitelist.json")
}

// HistoryPath returns <root>/history.db.
func (w *Workspace) HistoryPath() string {
	return filepath.Join(w.Root, "history.db")
}

// Resolve returns p with ~ expanded, or fallback when p is empty.
func (w *Workspace) Resolve(p, fallback string) string {
	if p == "" {
		return fallback
	}
	resolved, err := resolvePath(p)
	if err != nil {
		return p
	}
	return resolved
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
