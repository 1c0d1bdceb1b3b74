package session

import (
	"bytes"
	"io"
	"os/exec"
	"sync"
	"time"
)

// State is the lifecycle position of a session. A session is Active from the
// moment its process has started until it is Terminated; there is no way back.
type State int

const (
	StateActive State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Reason records why a session ended.
type Reason string

const (
	ReasonTerminated Reason = "terminated" // explicit Terminate call
	ReasonIdle       Reason = "idle"       // reaped by the sweep
	ReasonExited     Reason = "exited"     // process ended on its own
	ReasonShutdown   Reason = "shutdown"   // registry closed
)

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID             string    `json:"id"`
	Dir            string    `json:"cwd"`
	Shell          string    `json:"shell"`
	PID            int       `json:"pid"`
	State          State     `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type session struct {
	id        string
	dir       string
	shell     string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	createdAt time.Time

	// op serializes Write, Terminate and the idle check on this session.
	op sync.Mutex

	mu           sync.Mutex
	buf          bytes.Buffer
	lastActivity time.Time
	state        State

	notify chan struct{} // cap 1, signaled on every output chunk
	done   chan struct{} // closed once the process has been reaped
}

// Write implements io.Writer for the process's stdout and stderr.
func (s *session) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.buf.Write(p)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return len(p), nil
}

// drain returns and clears the accumulated output.
func (s *session) drain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buf.String()
	s.buf.Reset()
	return out
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *session) markTerminated() {
	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
}

func (s *session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	return Info{
		ID:             s.id,
		Dir:            s.dir,
		Shell:          s.shell,
		PID:            pid,
		State:          s.state,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
}
