// Package classifier decides whether a command line needs an interactive
// session or can run to completion as a one-shot process.
package classifier

import (
	"path/filepath"
	"strings"
)

// Classification is the outcome of Classify.
type Classification struct {
	Interactive bool
	Reason      string
}

// interactivePrograms open a prompt, a full-screen UI or a pager when started.
var interactivePrograms = map[string]bool{
	"vim": true, "vi": true, "nvim": true, "nano": true, "emacs": true,
	"top": true, "htop": true,
	"mysql": true, "psql": true, "sqlite3": true, "redis-cli": true, "mongosh": true,
	"python": true, "python2": true, "python3": true, "node": true, "ruby": true, "irb": true,
	"ssh": true, "telnet": true,
	"ftp": true, "sftp": true,
	"less": true, "more": true,
}

// replPrograms only prompt when started bare. Given a script or any other
// argument they are expected to run to completion.
var replPrograms = map[string]bool{
	"python": true, "python2": true, "python3": true, "node": true, "ruby": true,
}

// interactiveFlags are matched as whole tokens; "-it" does not match "-i".
var interactiveFlags = map[string]bool{
	"-i": true, "--interactive": true,
	"-t": true, "--tty": true,
}

// Classifier is stateless; the zero value is ready to use.
type Classifier struct {
	extra map[string]bool
}

// New returns a Classifier that also treats extraPrograms as interactive.
func New(extraPrograms ...string) *Classifier {
	c := &Classifier{}
	if len(extraPrograms) > 0 {
		c.extra = make(map[string]bool, len(extraPrograms))
		for _, p := range extraPrograms {
			c.extra[programName(p)] = true
		}
	}
	return c
}

// Classify inspects the whitespace-separated tokens of line.
func (c *Classifier) Classify(line string) Classification {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Classification{Reason: "empty command"}
	}
	prog := programName(parts[0])
	flag := firstInteractiveFlag(parts[1:])

	if replPrograms[prog] && len(parts) > 1 && flag == "" {
		return Classification{Reason: prog + " invoked with arguments runs to completion"}
	}
	if interactivePrograms[prog] || c.extra[prog] {
		return Classification{Interactive: true, Reason: "interactive program: " + prog}
	}
	if flag != "" {
		return Classification{Interactive: true, Reason: "interactive flag: " + flag}
	}
	return Classification{}
}

func firstInteractiveFlag(args []string) string {
	for _, a := range args {
		if interactiveFlags[a] {
			return a
		}
	}
	return ""
}

// programName strips directories and a Windows .exe suffix: "/usr/bin/vim"
// and "VIM.EXE" both become "vim".
func programName(token string) string {
	name := filepath.Base(filepath.FromSlash(token))
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	return strings.TrimSuffix(name, ".exe")
}
