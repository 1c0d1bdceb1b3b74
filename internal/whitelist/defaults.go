package whitelist

import (
	"os"
	"path/filepath"

	"github.com/jkaninda/shellguard/internal/pathutil"
)

// candidateDirectories lists the initial-root candidates in preference order:
// an explicitly preferred root, then Documents, Desktop and the home directory.
func (s *Store) candidateDirectories() []string {
	var out []string
	if s.preferred != "" {
		out = append(out, s.preferred)
	}
	home := s.homeDir
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	if home != "" {
		out = append(out,
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
			home,
		)
	}
	return out
}

// defaultDirectory returns the first candidate that is an existing writable
// directory. When nothing qualifies it falls back to the home directory, and
// failing that to the working directory of the process.
func (s *Store) defaultDirectory() string {
	candidates := s.candidateDirectories()
	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if !writable(dir) {
			continue
		}
		if c, err := pathutil.Canonical(dir); err == nil {
			return c
		}
	}
	if len(candidates) > 0 {
		home := candidates[len(candidates)-1]
		if c, err := pathutil.Canonical(home); err == nil {
			return c
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return string(filepath.Separator)
	}
	return wd
}
