package file

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jkaninda/shellguard/internal/sandbox"
	"github.com/jkaninda/shellguard/internal/tools"
)

type staticRoots []string

func (s staticRoots) List(context.Context) ([]string, error) { return s, nil }

// setup returns a registry with the file tools confined to <tmp>/sbx, the
// sbx path, and a sibling directory outside the whitelist.
func setup(t *testing.T) (*tools.Registry, string, string) {
	t.Helper()
	tmp, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sbx := filepath.Join(tmp, "sbx")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{sbx, outside} {
		if err := os.MkdirAll(d, 0750); err != nil {
			t.Fatal(err)
		}
	}
	reg := tools.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg.Register(NewTools(sandbox.NewConfiner(staticRoots{sbx}, ""), Config{MaxFileSizeBytes: 1024}, logger)...)
	return reg, sbx, outside
}

func call(t *testing.T, reg *tools.Registry, name string, params map[string]any) *tools.Result {
	t.Helper()
	return reg.Call(context.Background(), name, params)
}

func TestWriteReadDelete(t *testing.T) {
	reg, sbx, _ := setup(t)

	res := call(t, reg, "writeFile", map[string]any{"workingDirectory": sbx, "path": "notes/a.txt", "content": "hello"})
	if !res.Success {
		t.Fatalf("writeFile: %s", res.Message)
	}
	if data, err := os.ReadFile(filepath.Join(sbx, "notes", "a.txt")); err != nil || string(data) != "hello" {
		t.Fatalf("file content = %q, %v", data, err)
	}

	res = call(t, reg, "readFile", map[string]any{"workingDirectory": sbx, "path": "notes/a.txt"})
	if !res.Success {
		t.Fatalf("readFile: %s", res.Message)
	}
	if got := res.Data.(map[string]any)["content"]; got != "hello" {
		t.Errorf("content = %v", got)
	}

	res = call(t, reg, "deleteFile", map[string]any{"workingDirectory": sbx, "path": "notes/a.txt"})
	if !res.Success {
		t.Fatalf("deleteFile: %s", res.Message)
	}
	if _, err := os.Stat(filepath.Join(sbx, "notes", "a.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Error("file still exists")
	}

	res = call(t, reg, "deleteFile", map[string]any{"workingDirectory": sbx, "path": "notes/a.txt"})
	if res.Success || !strings.Contains(res.Message, "does not exist") {
		t.Errorf("second delete = %+v", res)
	}
}

func TestEscapesRejected(t *testing.T) {
	reg, sbx, outside := setup(t)
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		tool   string
		params map[string]any
	}{
		{"read via dotdot", "readFile", map[string]any{"workingDirectory": sbx, "path": "../outside/secret"}},
		{"read absolute", "readFile", map[string]any{"workingDirectory": sbx, "path": filepath.Join(outside, "secret")}},
		{"write outside", "writeFile", map[string]any{"workingDirectory": sbx, "path": "../outside/new", "content": "x"}},
		{"unsafe working directory", "readFile", map[string]any{"workingDirectory": outside, "path": "secret"}},
		{"copy destination outside", "copyFile", map[string]any{"workingDirectory": sbx, "source": "a", "destination": "../outside/a"}},
		{"list outside", "listDirectory", map[string]any{"workingDirectory": sbx, "path": outside}},
		{"remove root", "removeDirectory", map[string]any{"workingDirectory": sbx, "path": sbx}},
		{"search outside", "searchByName", map[string]any{"path": outside, "pattern": "secret"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := call(t, reg, tc.tool, tc.params)
			if res.Success {
				t.Fatalf("%s succeeded outside the whitelist: %+v", tc.tool, res)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(outside, "new")); err == nil {
		t.Error("writeFile created a file outside the whitelist")
	}
	if _, err := os.Stat(sbx); err != nil {
		t.Error("whitelist root was removed")
	}
}

func TestWriteThroughDanglingLink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	reg, sbx, outside := setup(t)
	planted := filepath.Join(outside, "planted.txt")
	if err := os.Symlink(planted, filepath.Join(sbx, "evil")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sbx, "src.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		tool   string
		params map[string]any
	}{
		{"writeFile", map[string]any{"path": "evil", "content": "pwned"}},
		{"copyFile", map[string]any{"source": "src.txt", "destination": "evil"}},
		{"moveFile", map[string]any{"source": "src.txt", "destination": "evil"}},
	} {
		tc.params["workingDirectory"] = sbx
		if res := call(t, reg, tc.tool, tc.params); res.Success {
			t.Errorf("%s through dangling link succeeded: %s", tc.tool, res.Message)
		}
		if _, err := os.Lstat(planted); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s created %s outside the whitelist", tc.tool, planted)
		}
	}
}

func TestCopyMove(t *testing.T) {
	reg, sbx, _ := setup(t)
	if err := os.WriteFile(filepath.Join(sbx, "a.txt"), []byte("data"), 0640); err != nil {
		t.Fatal(err)
	}

	res := call(t, reg, "copyFile", map[string]any{"workingDirectory": sbx, "source": "a.txt", "destination": "sub/b.txt"})
	if !res.Success {
		t.Fatalf("copyFile: %s", res.Message)
	}
	if data, _ := os.ReadFile(filepath.Join(sbx, "sub", "b.txt")); string(data) != "data" {
		t.Errorf("copied content = %q", data)
	}

	res = call(t, reg, "moveFile", map[string]any{"workingDirectory": sbx, "source": "a.txt", "destination": "c.txt"})
	if !res.Success {
		t.Fatalf("moveFile: %s", res.Message)
	}
	if _, err := os.Stat(filepath.Join(sbx, "a.txt")); err == nil {
		t.Error("source still exists after move")
	}
	if _, err := os.Stat(filepath.Join(sbx, "c.txt")); err != nil {
		t.Error("destination missing after move")
	}
}

func TestDirectories(t *testing.T) {
	reg, sbx, _ := setup(t)

	res := call(t, reg, "createDirectory", map[string]any{"workingDirectory": sbx, "path": "x/y/z"})
	if !res.Success {
		t.Fatalf("createDirectory: %s", res.Message)
	}
	if err := os.WriteFile(filepath.Join(sbx, "x", "f.txt"), []byte("1"), 0600); err != nil {
		t.Fatal(err)
	}

	res = call(t, reg, "listDirectory", map[string]any{"workingDirectory": sbx, "path": "x"})
	if !res.Success {
		t.Fatalf("listDirectory: %s", res.Message)
	}
	files := res.Data.(map[string]any)["files"].([]Entry)
	if len(files) != 2 {
		t.Fatalf("listing = %+v", files)
	}
	names := map[string]bool{}
	for _, f := range files {
		names[f.Name] = f.IsDirectory
	}
	if isDir, ok := names["y"]; !ok || !isDir {
		t.Errorf("y missing or not a dir: %v", names)
	}

	res = call(t, reg, "removeDirectory", map[string]any{"workingDirectory": sbx, "path": "x"})
	if !res.Success {
		t.Fatalf("removeDirectory: %s", res.Message)
	}
	if _, err := os.Stat(filepath.Join(sbx, "x")); err == nil {
		t.Error("directory still exists")
	}
}

func TestReadSizeLimit(t *testing.T) {
	reg, sbx, _ := setup(t)
	if err := os.WriteFile(filepath.Join(sbx, "big"), make([]byte, 2048), 0600); err != nil {
		t.Fatal(err)
	}
	res := call(t, reg, "readFile", map[string]any{"workingDirectory": sbx, "path": "big"})
	if res.Success || !strings.Contains(res.Message, "exceeds limit") {
		t.Errorf("readFile big = %+v", res)
	}
	res = call(t, reg, "writeFile", map[string]any{"workingDirectory": sbx, "path": "w", "content": strings.Repeat("x", 2048)})
	if res.Success {
		t.Error("writeFile accepted oversized content")
	}
}

func TestSearchByName(t *testing.T) {
	reg, sbx, _ := setup(t)
	for _, f := range []string{"report.md", "notes.txt", "deep/report-2.md", "deep/other.go"} {
		p := filepath.Join(sbx, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		pattern   string
		recursive bool
		want      int
	}{
		{"report", false, 1},
		{"report", true, 2},
		{"*.md", true, 2},
		{"*.go", false, 0},
		{"*.go", true, 1},
	}
	for _, tc := range tests {
		res := call(t, reg, "searchByName", map[string]any{"path": sbx, "pattern": tc.pattern, "recursive": tc.recursive})
		if !res.Success {
			t.Fatalf("searchByName(%q): %s", tc.pattern, res.Message)
		}
		files := res.Data.(map[string]any)["files"].([]Entry)
		if len(files) != tc.want {
			t.Errorf("searchByName(%q, recursive=%v) = %d files, want %d", tc.pattern, tc.recursive, len(files), tc.want)
		}
	}

	if res := call(t, reg, "searchByName", map[string]any{"path": sbx, "pattern": "[bad"}); res.Success {
		t.Error("malformed glob accepted")
	}
}

func TestSearchByContent(t *testing.T) {
	reg, sbx, _ := setup(t)
	if err := os.WriteFile(filepath.Join(sbx, "a.txt"), []byte("first\nHello World\nlast\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sbx, "b.bin"), []byte("hello world"), 0600); err != nil {
		t.Fatal(err)
	}

	res := call(t, reg, "searchByContent", map[string]any{"path": sbx, "pattern": "hello", "ignoreCase": true})
	if !res.Success {
		t.Fatalf("searchByContent: %s", res.Message)
	}
	hits := res.Data.(map[string]any)["results"].([]ContentHit)
	if len(hits) != 1 || hits[0].Name != "a.txt" {
		t.Fatalf("hits = %+v", hits)
	}
	m := hits[0].Matches[0]
	if m.Line != 2 || m.Before != "first" || m.After != "last" {
		t.Errorf("match = %+v", m)
	}

	res = call(t, reg, "searchByContent", map[string]any{"path": sbx, "pattern": "hello"})
	if hits := res.Data.(map[string]any)["results"].([]ContentHit); len(hits) != 0 {
		t.Errorf("case-sensitive search matched %+v", hits)
	}
}

func TestNamePattern(t *testing.T) {
	if got := namePattern("foo"); got != "*foo*" {
		t.Errorf("namePattern(foo) = %q", got)
	}
	if got := namePattern("*.go"); got != "*.go" {
		t.Errorf("namePattern(*.go) = %q", got)
	}
}
