package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrPathRejected is matched by every confinement failure.
	ErrPathRejected = errors.New("path rejected")

	// ErrInvalidWorkingDirectory marks paths that could not be resolved at all.
	ErrInvalidWorkingDirectory = errors.New("invalid working directory")

	// ErrProcessSpawn is wrapped when the OS refuses to start a process.
	ErrProcessSpawn = errors.New("process spawn failed")
)

// PathRejectedError describes why a path was refused.
type PathRejectedError struct {
	Path        string // as supplied by the caller
	Resolved    string // canonical form, empty if resolution failed
	NearestRoot string // whitelist root sharing the longest prefix with Resolved
	Reason      string
	Cause       error // resolution failure, nil for a plain escape
}

func (e *PathRejectedError) Error() string {
	msg := fmt.Sprintf("path %q rejected: %s", e.Path, e.Reason)
	if e.NearestRoot != "" {
		msg += fmt.Sprintf(" (nearest allowed root: %s)", e.NearestRoot)
	}
	return msg
}

func (e *PathRejectedError) Unwrap() error { return e.Cause }

// Is lets callers match with errors.Is against the sentinels. Resolution
// failures also match ErrInvalidWorkingDirectory.
func (e *PathRejectedError) Is(target error) bool {
	switch target {
	case ErrPathRejected:
		return true
	case ErrInvalidWorkingDirectory:
		return e.Cause != nil
	}
	return false
}
