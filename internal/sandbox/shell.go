package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// DefaultShell picks the platform shell: %COMSPEC% (or cmd.exe) on Windows,
// otherwise /bin/bash when present and /bin/sh as the last resort.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

type shellKind int

const (
	shellPOSIX shellKind = iota
	shellCmd
	shellPowerShell
)

// kindOf splits on both separators regardless of the host OS.
func kindOf(shell string) shellKind {
	name := filepath.Base(shell)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	switch name {
	case "cmd":
		return shellCmd
	case "powershell", "pwsh":
		return shellPowerShell
	}
	return shellPOSIX
}

// OneShotArgv builds the argv that runs command once under shell.
//
// POSIX shells receive args as positional parameters ("$@"), so they are
// passed through verbatim and never re-parsed. cmd.exe and PowerShell have
// no equivalent and get the arguments appended with minimal quoting.
func OneShotArgv(shell, command string, args []string) []string {
	switch kindOf(shell) {
	case shellCmd:
		return []string{shell, "/C", joinQuoted(command, args)}
	case shellPowerShell:
		return []string{shell, "-NoLogo", "-NoProfile", "-Command", joinQuoted(command, args)}
	}
	script := command
	if len(args) > 0 {
		script += ` "$@"`
	}
	argv := make([]string, 0, 4+len(args))
	argv = append(argv, shell, "-c", script, "_") // "_" fills $0
	return append(argv, args...)
}

// SessionArgv builds the argv for a long-lived shell that reads commands
// from stdin.
func SessionArgv(shell string) []string {
	switch kindOf(shell) {
	case shellCmd:
		return []string{shell, "/Q"}
	case shellPowerShell:
		return []string{shell, "-NoLogo", "-NoProfile", "-Command", "-"}
	}
	return []string{shell}
}

func joinQuoted(command string, args []string) string {
	var b strings.Builder
	b.WriteString(command)
	for _, a := range args {
		b.WriteByte(' ')
		if a == "" || strings.ContainsAny(a, " \t\"") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(a, `"`, `\"`))
			b.WriteByte('"')
			continue
		}
		b.WriteString(a)
	}
	return b.String()
}

// MergeEnv returns base with overrides applied. Keys in overrides replace
// matching entries in place; new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, e := range base {
		key, _, _ := strings.Cut(e, "=")
		if v, ok := overrides[envKey(key, overrides)]; ok {
			out = append(out, key+"="+v)
			seen[envKey(key, overrides)] = true
			continue
		}
		out = append(out, e)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// envKey maps key to the override key that should replace it. Environment
// names are case-insensitive on Windows.
func envKey(key string, overrides map[string]string) string {
	if runtime.GOOS != "windows" {
		return key
	}
	for k := range overrides {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}
