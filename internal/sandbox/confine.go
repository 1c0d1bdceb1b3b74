package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jkaninda/shellguard/internal/pathutil"
)

// RootLister supplies the approved roots. *whitelist.Store satisfies it.
type RootLister interface {
	List(ctx context.Context) ([]string, error)
}

// ValidationResult is the outcome of a single confinement check.
type ValidationResult struct {
	OK            bool
	CanonicalPath string
	Reason        string
	Err           error // *PathRejectedError when !OK
}

// Confiner decides whether paths resolve inside a whitelist root.
type Confiner struct {
	roots       RootLister
	defaultRoot string
}

// NewConfiner creates a Confiner. defaultRoot anchors relative paths when no
// base directory is given; when empty the first whitelist root is used.
func NewConfiner(roots RootLister, defaultRoot string) *Confiner {
	return &Confiner{roots: roots, defaultRoot: defaultRoot}
}

// Confine resolves candidate and checks it against the current whitelist.
// A non-empty base must be confined itself before relative candidates are
// joined to it. Every failure, including resolution errors, is reported in
// the result rather than returned.
func (c *Confiner) Confine(ctx context.Context, candidate, base string) ValidationResult {
	roots, err := c.canonicalRoots(ctx)
	if err != nil {
		return reject(candidate, "", "", "whitelist unavailable", err)
	}

	if candidate == "" {
		return reject(candidate, "", "", "empty path", errors.New("path must not be empty"))
	}

	expanded, err := pathutil.ExpandHome(candidate)
	if err != nil {
		return reject(candidate, "", "", "cannot expand home directory", err)
	}

	anchor := c.defaultRoot
	if anchor == "" {
		anchor = roots[0]
	}
	if base != "" {
		res := c.check(base, roots)
		if !res.OK {
			res.Reason = "base directory " + res.Reason
			if rej, ok := res.Err.(*PathRejectedError); ok {
				rej.Reason = res.Reason
			}
			return res
		}
		anchor = res.CanonicalPath
	}

	joined := expanded
	if !filepath.IsAbs(expanded) {
		joined = filepath.Join(anchor, expanded)
	}

	res := c.check(joined, roots)
	if rej, ok := res.Err.(*PathRejectedError); ok {
		rej.Path = candidate
	}
	return res
}

// AssertConfined is the fail-fast form of Confine.
func (c *Confiner) AssertConfined(ctx context.Context, candidate, base string) (string, error) {
	res := c.Confine(ctx, candidate, base)
	if !res.OK {
		return "", res.Err
	}
	return res.CanonicalPath, nil
}

func (c *Confiner) check(path string, roots []string) ValidationResult {
	resolved, err := pathutil.Canonical(path)
	if err != nil {
		return reject(path, "", nearestRoot(path, roots), "cannot be resolved", err)
	}
	for _, root := range roots {
		if pathutil.Within(root, resolved) {
			return ValidationResult{OK: true, CanonicalPath: resolved}
		}
	}
	return reject(path, resolved, nearestRoot(resolved, roots), "is outside every whitelisted directory", nil)
}

func (c *Confiner) canonicalRoots(ctx context.Context) ([]string, error) {
	dirs, err := c.roots.List(ctx)
	if err != nil {
		return nil, err
	}
	roots := make([]string, 0, len(dirs))
	for _, d := range dirs {
		r, err := pathutil.Canonical(d)
		if err != nil {
			continue
		}
		roots = append(roots, r)
	}
	if len(roots) == 0 {
		return nil, errors.New("no usable whitelist roots")
	}
	return roots, nil
}

func nearestRoot(path string, roots []string) string {
	best, bestN := "", -1
	for _, r := range roots {
		if n := pathutil.SharedSegments(r, path); n > bestN {
			best, bestN = r, n
		}
	}
	return best
}

func reject(path, resolved, root, reason string, cause error) ValidationResult {
	if cause != nil {
		reason = fmt.Sprintf("%s: %v", reason, cause)
	}
	return ValidationResult{
		Reason: reason,
		Err: &PathRejectedError{
			Path:        path,
			Resolved:    resolved,
			NearestRoot: root,
			Reason:      reason,
			Cause:       cause,
		},
	}
}
