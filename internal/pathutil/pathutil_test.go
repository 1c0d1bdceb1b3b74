package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := filepath.Join(sep, "home", "user")

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"same", root, true},
		{"child", filepath.Join(root, "docs"), true},
		{"deep child", filepath.Join(root, "a", "b", "c.txt"), true},
		{"sibling prefix", filepath.Join(sep, "home", "username"), false},
		{"sibling prefix child", filepath.Join(sep, "home", "username2", "file"), false},
		{"parent", filepath.Join(sep, "home"), false},
		{"unrelated", filepath.Join(sep, "etc"), false},
		{"dotdot named dir", filepath.Join(root, "..foo"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Within(root, tc.target); got != tc.want {
				t.Errorf("Within(%q, %q) = %v, want %v", root, tc.target, got, tc.want)
			}
		})
	}
}

func TestCanonical_ResolvesDotSegments(t *testing.T) {
	dir := resolvedTempDir(t)
	if err := os.MkdirAll(filepath.Join(dir, "a", "b"), 0750); err != nil {
		t.Fatal(err)
	}

	got, err := Canonical(filepath.Join(dir, "a", "b", "..", ".", "b"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	want := filepath.Join(dir, "a", "b")
	if got != want {
		t.Errorf("Canonical = %q, want %q", got, want)
	}
}

func TestCanonical_MissingTail(t *testing.T) {
	dir := resolvedTempDir(t)

	got, err := Canonical(filepath.Join(dir, "missing", "file.txt"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	want := filepath.Join(dir, "missing", "file.txt")
	if got != want {
		t.Errorf("Canonical = %q, want %q", got, want)
	}
}

func TestCanonical_FollowsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	dir := resolvedTempDir(t)
	outside := resolvedTempDir(t)
	link := filepath.Join(dir, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatal(err)
	}

	got, err := Canonical(filepath.Join(link, "secret"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if Within(dir, got) {
		t.Errorf("symlinked path %q should resolve outside %q", got, dir)
	}
	if !Within(outside, got) {
		t.Errorf("symlinked path %q should resolve under %q", got, outside)
	}
}

func TestCanonical_DanglingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	dir := resolvedTempDir(t)
	outside := resolvedTempDir(t)

	tests := []struct {
		name   string
		target string
		path   []string // relative to dir, first element is the link
		want   string
	}{
		{"absolute target outside", filepath.Join(outside, "planted.txt"), []string{"evil"}, filepath.Join(outside, "planted.txt")},
		{"target directory outside", filepath.Join(outside, "missing"), []string{"evildir", "f.txt"}, filepath.Join(outside, "missing", "f.txt")},
		{"relative target inside", "real.txt", []string{"alias"}, filepath.Join(dir, "real.txt")},
		{"relative target escaping", filepath.Join("..", filepath.Base(outside), "x"), []string{"rel"}, filepath.Join(outside, "x")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			link := filepath.Join(dir, tc.path[0])
			if err := os.Symlink(tc.target, link); err != nil {
				t.Fatal(err)
			}
			got, err := Canonical(filepath.Join(append([]string{dir}, tc.path...)...))
			if err != nil {
				t.Fatalf("Canonical: %v", err)
			}
			if got != tc.want {
				t.Errorf("Canonical = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCanonical_DanglingChain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	dir := resolvedTempDir(t)
	outside := resolvedTempDir(t)
	// one -> two -> outside/final, none of the targets exist.
	if err := os.Symlink(filepath.Join(dir, "two"), filepath.Join(dir, "one")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(outside, "final"), filepath.Join(dir, "two")); err != nil {
		t.Fatal(err)
	}
	got, err := Canonical(filepath.Join(dir, "one"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if want := filepath.Join(outside, "final"); got != want {
		t.Errorf("Canonical = %q, want %q", got, want)
	}
}

func TestCanonical_Empty(t *testing.T) {
	if _, err := Canonical(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSharedSegments(t *testing.T) {
	if got := SharedSegments("/home/user/a", "/home/user/b"); got != 3 {
		t.Errorf("SharedSegments = %d, want 3", got)
	}
	if got := SharedSegments("/etc", "/home"); got != 1 {
		t.Errorf("SharedSegments = %d, want 1", got)
	}
}

// resolvedTempDir returns a temp dir with symlinks resolved (macOS /var -> /private/var).
func resolvedTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}
