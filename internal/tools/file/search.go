package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jkaninda/shellguard/internal/tools"
)

// maxSearchResults bounds a single search.
const maxSearchResults = 1000

var errSearchLimit = errors.New("search result limit reached")

// resolveStart confines the search root. workingDirectory is optional here.
func (b base) resolveStart(ctx context.Context, params map[string]any) (string, error) {
	p, err := tools.RequireString(params, "path")
	if err != nil {
		return "", err
	}
	wd, err := tools.OptionalString(params, "workingDirectory")
	if err != nil {
		return "", err
	}
	dir, err := b.confiner.AssertConfined(ctx, p, wd)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("directory does not exist: %s", dir)
	}
	return dir, nil
}

// walkFiles calls fn for every regular file under root, descending only when
// recursive is set. Symlinks are not followed.
func walkFiles(ctx context.Context, root string, recursive bool, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(path, d)
	})
}

// ---- SearchByNameTool ----

type SearchByNameTool struct{ base }

func (t *SearchByNameTool) Name() string { return "searchByName" }
func (t *SearchByNameTool) Description() string {
	return "Search files by name using a glob pattern; a pattern without '*' matches names containing it"
}
func (t *SearchByNameTool) InputSchema() map[string]any {
	s := pathSchema(map[string]any{
		"path":      str("Directory to start the search from"),
		"pattern":   str("File name pattern (glob)"),
		"recursive": map[string]any{"type": "boolean", "description": "Search subdirectories"},
	}, "path", "pattern")
	s["required"] = []string{"path", "pattern"}
	return s
}

func (t *SearchByNameTool) Validate(params map[string]any) error {
	pattern, err := tools.RequireString(params, "pattern")
	if err != nil {
		return err
	}
	if _, err := filepath.Match(namePattern(pattern), ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if _, err := tools.OptionalBool(params, "recursive"); err != nil {
		return err
	}
	_, err = tools.RequireString(params, "path")
	return err
}

func (t *SearchByNameTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	root, err := t.resolveStart(ctx, params)
	if err != nil {
		return nil, err
	}
	pattern, _ := tools.RequireString(params, "pattern")
	pattern = namePattern(pattern)
	recursive, _ := tools.OptionalBool(params, "recursive")

	var found []Entry
	err = walkFiles(ctx, root, recursive, func(path string, d fs.DirEntry) error {
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		found = append(found, toEntry(path, d))
		if len(found) >= maxSearchResults {
			return errSearchLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSearchLimit) {
		return nil, fmt.Errorf("searching %s: %w", root, err)
	}
	if found == nil {
		found = []Entry{}
	}
	return tools.OK(fmt.Sprintf("Found %d file(s)", len(found)), map[string]any{
		"path":      root,
		"pattern":   pattern,
		"files":     found,
		"truncated": errors.Is(err, errSearchLimit),
	}), nil
}

// namePattern turns a bare substring into a glob.
func namePattern(p string) string {
	if strings.Contains(p, "*") {
		return p
	}
	return "*" + p + "*"
}

// ---- SearchByContentTool ----

type SearchByContentTool struct{ base }

// Match is one matching line.
type Match struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Before  string `json:"before,omitempty"`
	After   string `json:"after,omitempty"`
}

// ContentHit groups the matches found in one file.
type ContentHit struct {
	Path    string  `json:"path"`
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".xml": true, ".csv": true, ".log": true,
	".js": true, ".ts": true, ".jsx": true, ".tsx": true, ".html": true, ".css": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".conf": true, ".config": true,
	".py": true, ".rb": true, ".php": true, ".java": true, ".go": true, ".rs": true,
	".c": true, ".cpp": true, ".h": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".properties": true, ".env": true, ".sql": true,
}

func (t *SearchByContentTool) Name() string { return "searchByContent" }
func (t *SearchByContentTool) Description() string {
	return "Search text files for lines containing a string"
}
func (t *SearchByContentTool) InputSchema() map[string]any {
	s := pathSchema(map[string]any{
		"path":       str("Directory to start the search from"),
		"pattern":    str("Text to search for"),
		"recursive":  map[string]any{"type": "boolean", "description": "Search subdirectories"},
		"ignoreCase": map[string]any{"type": "boolean", "description": "Case-insensitive match"},
	}, "path", "pattern")
	s["required"] = []string{"path", "pattern"}
	return s
}

func (t *SearchByContentTool) Validate(params map[string]any) error {
	if err := requireParams(params, "path", "pattern"); err != nil {
		return err
	}
	if _, err := tools.OptionalBool(params, "recursive"); err != nil {
		return err
	}
	_, err := tools.OptionalBool(params, "ignoreCase")
	return err
}

func (t *SearchByContentTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	root, err := t.resolveStart(ctx, params)
	if err != nil {
		return nil, err
	}
	needle, _ := tools.RequireString(params, "pattern")
	recursive, _ := tools.OptionalBool(params, "recursive")
	ignoreCase, _ := tools.OptionalBool(params, "ignoreCase")
	if ignoreCase {
		needle = strings.ToLower(needle)
	}

	var hits []ContentHit
	total := 0
	err = walkFiles(ctx, root, recursive, func(path string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil || info.Size() > t.config.maxSize() || !isTextFile(path) {
			return nil
		}
		matches := grepFile(path, needle, ignoreCase)
		if len(matches) == 0 {
			return nil
		}
		hits = append(hits, ContentHit{Path: path, Name: d.Name(), Matches: matches})
		total += len(matches)
		if total >= maxSearchResults {
			return errSearchLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSearchLimit) {
		return nil, fmt.Errorf("searching %s: %w", root, err)
	}
	if hits == nil {
		hits = []ContentHit{}
	}
	return tools.OK(fmt.Sprintf("Found matches in %d file(s)", len(hits)), map[string]any{
		"path":      root,
		"results":   hits,
		"truncated": errors.Is(err, errSearchLimit),
	}), nil
}

// isTextFile trusts known extensions and sniffs the first 512 bytes of
// extensionless files.
func isTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		return textExtensions[ext]
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return strings.HasPrefix(http.DetectContentType(buf[:n]), "text/")
}

func grepFile(path, needle string, ignoreCase bool) []Match {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	var out []Match
	for i, line := range lines {
		hay := line
		if ignoreCase {
			hay = strings.ToLower(line)
		}
		if !strings.Contains(hay, needle) {
			continue
		}
		m := Match{Line: i + 1, Content: strings.TrimSpace(line)}
		if i > 0 {
			m.Before = strings.TrimSpace(lines[i-1])
		}
		if i+1 < len(lines) {
			m.After = strings.TrimSpace(lines[i+1])
		}
		out = append(out, m)
	}
	return out
}
