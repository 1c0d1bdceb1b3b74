// Package pathutil canonicalizes filesystem paths and answers containment
// questions on path-segment boundaries.
package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// maxLinks bounds how many dangling symlinks Canonical follows in one call,
// matching the usual kernel limit.
const maxLinks = 40

// Canonical returns the absolute, cleaned, symlink-free form of path.
//
// Paths that do not exist yet are resolved through their deepest existing
// ancestor and the missing tail is re-attached, so a file about to be created
// is judged by where it will actually land. When the first missing component
// is itself a dangling symlink, its target is resolved in turn. Symlink loops,
// permission errors and other resolution failures are returned as errors.
func Canonical(path string) (string, error) {
	if path == "" {
		return "", errors.New("path must not be empty")
	}
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	return canonical(filepath.Clean(abs), 0)
}

func canonical(abs string, links int) (string, error) {
	if links > maxLinks {
		return "", fmt.Errorf("resolving %s: too many levels of symbolic links", abs)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolving %s: %w", abs, err)
	}

	// Walk up until an existing ancestor is found. tail is collected leaf first.
	var tail []string
	cur := abs
	for {
		parent := filepath.Dir(cur)
		tail = append(tail, filepath.Base(cur))
		if parent == cur {
			// Reached the volume root without finding anything; keep the cleaned form.
			return abs, nil
		}
		cur = parent

		resolvedParent, perr := filepath.EvalSymlinks(cur)
		if perr == nil {
			return reattach(resolvedParent, tail, links)
		}
		if !errors.Is(perr, fs.ErrNotExist) {
			return "", fmt.Errorf("resolving %s: %w", cur, perr)
		}
	}
}

// reattach joins tail (leaf first) onto the existing directory dir. Only the
// component directly under dir can exist on disk; if it is a symlink, the path
// is re-resolved through the link target.
func reattach(dir string, tail []string, links int) (string, error) {
	first := filepath.Join(dir, tail[len(tail)-1])
	rest := make([]string, 0, len(tail))
	rest = append(rest, first)
	for i := len(tail) - 2; i >= 0; i-- {
		rest = append(rest, tail[i])
	}
	joined := filepath.Join(rest...)

	fi, err := os.Lstat(first)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return joined, nil
	case err != nil:
		return "", fmt.Errorf("resolving %s: %w", first, err)
	case fi.Mode()&fs.ModeSymlink == 0:
		// Created since EvalSymlinks ran; start over.
		return canonical(joined, links+1)
	}

	target, err := os.Readlink(first)
	if err != nil {
		return "", fmt.Errorf("reading link %s: %w", first, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	rest[0] = target
	return canonical(filepath.Join(rest...), links+1)
}

// Within reports whether target equals root or lies beneath it. Both paths
// must already be canonical. The comparison is by path segment, so
// "/home/user" does not contain "/home/username".
func Within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SharedSegments counts the leading path segments a and b have in common.
func SharedSegments(a, b string) int {
	as := strings.Split(filepath.ToSlash(a), "/")
	bs := strings.Split(filepath.ToSlash(b), "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}
