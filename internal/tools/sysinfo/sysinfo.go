// Package sysinfo implements getSystemInfo.
package sysinfo

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/jkaninda/shellguard/internal/tools"
)

// probeTimeout bounds each version probe.
const probeTimeout = 2 * time.Second

// Roots lists the approved directories.
type Roots interface {
	List(ctx context.Context) ([]string, error)
}

// Info is the payload returned by getSystemInfo.
type Info struct {
	OS       OSInfo             `json:"os"`
	Shell    ShellInfo          `json:"shell"`
	Runtimes map[string]Runtime `json:"runtimes"`
	Security Security           `json:"security"`
}

type OSInfo struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	CPUs     int    `json:"cpus"`
	HomeDir  string `json:"homeDir"`
	TempDir  string `json:"tempDir"`
}

type ShellInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

type Runtime struct {
	Version string `json:"version"`
	Path    string `json:"path,omitempty"`
}

type Security struct {
	AllowedPaths []string `json:"allowedPaths"`
}

// Tool reports host, shell and runtime details plus the allowed roots.
type Tool struct {
	roots   Roots
	shell   string
	version string
}

// NewTool creates the getSystemInfo tool. shell is the configured default
// shell; version is this server's build version.
func NewTool(roots Roots, shell, version string) *Tool {
	return &Tool{roots: roots, shell: shell, version: version}
}

func (t *Tool) Name() string { return "getSystemInfo" }
func (t *Tool) Description() string {
	return "Get operating system, shell and runtime information plus the whitelisted directories"
}
func (t *Tool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *Tool) Validate(map[string]any) error { return nil }

func (t *Tool) Execute(ctx context.Context, _ map[string]any) (*tools.Result, error) {
	roots, err := t.roots.List(ctx)
	if err != nil {
		return nil, err
	}
	return tools.OK("System information retrieved successfully", t.Collect(ctx, roots)), nil
}

// Collect gathers everything except the roots lookup.
func (t *Tool) Collect(ctx context.Context, roots []string) Info {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()

	info := Info{
		OS: OSInfo{
			Platform: runtime.GOOS,
			Arch:     runtime.GOARCH,
			Hostname: host,
			CPUs:     runtime.NumCPU(),
			HomeDir:  home,
			TempDir:  os.TempDir(),
		},
		Shell: ShellInfo{Path: t.shell, Version: shellVersion(ctx, t.shell)},
		Runtimes: map[string]Runtime{
			"go":         {Version: runtime.Version()},
			"shellguard": {Version: t.version},
		},
		Security: Security{AllowedPaths: roots},
	}
	if rt, ok := probe(ctx, "python3", "--version"); ok {
		info.Runtimes["python"] = rt
	} else if rt, ok := probe(ctx, "python", "--version"); ok {
		info.Runtimes["python"] = rt
	}
	if rt, ok := probe(ctx, "node", "--version"); ok {
		info.Runtimes["node"] = rt
	}
	return info
}

func shellVersion(ctx context.Context, shell string) string {
	if shell == "" {
		return "N/A"
	}
	name := strings.TrimSuffix(strings.ToLower(baseName(shell)), ".exe")
	var rt Runtime
	var ok bool
	switch name {
	case "cmd":
		rt, ok = probe(ctx, shell, "/c", "ver")
	case "powershell", "pwsh":
		rt, ok = probe(ctx, shell, "-NoProfile", "-Command", "$PSVersionTable.PSVersion.ToString()")
	default:
		rt, ok = probe(ctx, shell, "--version")
	}
	if !ok {
		return "N/A"
	}
	return rt.Version
}

// probe runs name with args and returns the first non-empty output line.
func probe(ctx context.Context, name string, args ...string) (Runtime, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return Runtime{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return Runtime{}, false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return Runtime{Version: line, Path: path}, true
		}
	}
	return Runtime{}, false
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
