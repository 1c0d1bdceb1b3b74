// Package session supervises long-lived interactive shell processes.
//
// Each session is a child shell whose stdout and stderr are accumulated in a
// private buffer. Callers address sessions only by id: they feed input with
// Write, which returns whatever output arrived until the stream went quiet,
// and end them with Terminate. A periodic sweep reaps sessions that have seen
// no activity for longer than the idle timeout. Terminated ids are retired
// and never reused.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jkaninda/shellguard/internal/sandbox"
)

var (
	// ErrSessionNotFound is returned for unknown or terminated ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionLimit is returned by Create when MaxSessions are already running.
	ErrSessionLimit = errors.New("session limit reached")
)

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepInterval = time.Minute
	defaultSettleWindow  = 100 * time.Millisecond
	defaultMaxWait       = 2 * time.Second

	// reapTimeout bounds how long Terminate waits for a killed process to be reaped.
	reapTimeout = 5 * time.Second
)

// Config tunes a Registry. Zero durations select the defaults.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration // cron granularity: values below 1s run every second
	SettleWindow  time.Duration // output quiet period that ends a Write
	MaxWait       time.Duration // upper bound on a single Write
	MaxSessions   int           // 0 = unlimited
	Shell         string        // empty selects sandbox.DefaultShell
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.SettleWindow <= 0 {
		c.SettleWindow = defaultSettleWindow
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.MaxWait < c.SettleWindow {
		c.MaxWait = c.SettleWindow
	}
	if c.Shell == "" {
		c.Shell = sandbox.DefaultShell()
	}
	return c
}

// Observer is notified of lifecycle transitions. Implementations must not
// call back into the Registry.
type Observer interface {
	SessionCreated(info Info)
	SessionTerminated(info Info, reason Reason)
}

// Registry owns every interactive session. Safe for concurrent use.
type Registry struct {
	cfg       Config
	procs     sandbox.ProcessController
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	starting int
}

// Option customizes a Registry.
type Option func(*Registry)

// WithObserver registers o for lifecycle notifications. It may be given
// more than once; observers are notified in registration order.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithClock overrides the time source used for idle accounting.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry. Call Start to enable idle reaping.
func NewRegistry(cfg Config, procs sandbox.ProcessController, logger *slog.Logger, opts ...Option) *Registry {
	if procs == nil {
		procs = sandbox.NewProcessController()
	}
	r := &Registry{
		cfg:      cfg.withDefaults(),
		procs:    procs,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Registry) Config() Config { return r.cfg }

// Create spawns a shell rooted at dir, which the caller must already have
// confined. env is applied on top of the inherited environment. The returned
// id is the only handle to the session.
func (r *Registry) Create(ctx context.Context, dir, shell string, env map[string]string) (string, error) {
	if err := r.reserve(); err != nil {
		return "", err
	}
	defer r.release()

	if shell == "" {
		shell = r.cfg.Shell
	}
	argv := sandbox.SessionArgv(shell)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = sandbox.MergeEnv(os.Environ(), env)
	r.procs.Prepare(cmd)

	now := r.now()
	s := &session{
		id:           uuid.NewString(),
		dir:          dir,
		shell:        shell,
		cmd:          cmd,
		createdAt:    now,
		lastActivity: now,
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	// Same writer for both streams: exec shares one pipe and serializes writes.
	cmd.Stdout = s
	cmd.Stderr = s

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("%w: stdin pipe: %v", sandbox.ErrProcessSpawn, err)
	}
	s.stdin = stdin

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %s in %s: %v", sandbox.ErrProcessSpawn, shell, dir, err)
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	go r.wait(s)

	info := s.info()
	r.logger.InfoContext(ctx, "session created",
		slog.String("session_id", s.id),
		slog.String("dir", dir),
		slog.String("shell", shell),
		slog.Int("pid", info.PID),
	)
	for _, o := range r.observers {
		o.SessionCreated(info)
	}
	return s.id, nil
}

func (r *Registry) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.MaxSessions > 0 && len(r.sessions)+r.starting >= r.cfg.MaxSessions {
		return fmt.Errorf("%w: %d sessions already running", ErrSessionLimit, r.cfg.MaxSessions)
	}
	r.starting++
	return nil
}

func (r *Registry) release() {
	r.mu.Lock()
	r.starting--
	r.mu.Unlock()
}

// wait reaps the process and retires the session if nobody else has.
func (r *Registry) wait(s *session) {
	err := s.cmd.Wait()
	s.markTerminated()
	defer close(s.done)

	r.mu.Lock()
	owned := r.sessions[s.id] == s
	if owned {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	if !owned {
		return
	}
	attrs := []any{slog.String("session_id", s.id)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.Info("session process exited", attrs...)
	for _, o := range r.observers {
		o.SessionTerminated(s.info(), ReasonExited)
	}
}

func (r *Registry) lookup(id string) (*session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *Registry) owns(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[s.id] == s
}

// Write sends input to the session, appending a newline if missing, and
// returns the output accumulated until the stream has been quiet for the
// settle window (or MaxWait elapses, or the process exits). Empty output is
// returned as "" with a nil error.
func (r *Registry) Write(ctx context.Context, id, input string) (string, error) {
	s, err := r.lookup(id)
	if err != nil {
		return "", err
	}

	s.op.Lock()
	defer s.op.Unlock()

	if !r.owns(s) {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	// Discard a stale signal so the settle timer starts from this write.
	select {
	case <-s.notify:
	default:
	}

	s.touch(r.now())
	if _, err := io.WriteString(s.stdin, input); err != nil {
		select {
		case <-s.done:
			return "", fmt.Errorf("%w: %s: process exited", ErrSessionNotFound, id)
		default:
		}
		return "", fmt.Errorf("writing to session %s: %w", id, err)
	}

	r.settle(ctx, s)
	out := s.drain()
	s.touch(r.now())

	r.logger.DebugContext(ctx, "session write",
		slog.String("session_id", id),
		slog.Int("input_bytes", len(input)),
		slog.Int("output_bytes", len(out)),
	)
	return out, nil
}

// settle blocks until output has been quiet for SettleWindow.
func (r *Registry) settle(ctx context.Context, s *session) {
	quiet := time.NewTimer(r.cfg.SettleWindow)
	defer quiet.Stop()
	deadline := time.NewTimer(r.cfg.MaxWait)
	defer deadline.Stop()

	for {
		select {
		case <-s.notify:
			quiet.Reset(r.cfg.SettleWindow)
		case <-quiet.C:
			return
		case <-deadline.C:
			return
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Terminate kills the session's process tree and retires its id. Unknown or
// already terminated ids are a no-op. The returned error only reports a
// failed kill; the session is retired regardless.
func (r *Registry) Terminate(ctx context.Context, id string) error {
	s, err := r.lookup(id)
	if err != nil {
		return nil
	}
	s.op.Lock()
	defer s.op.Unlock()
	return r.terminateHeld(ctx, s, ReasonTerminated)
}

// terminateHeld retires s. Caller holds s.op.
func (r *Registry) terminateHeld(ctx context.Context, s *session, reason Reason) error {
	r.mu.Lock()
	if r.sessions[s.id] != s {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, s.id)
	r.mu.Unlock()

	_ = s.stdin.Close()
	killErr := r.procs.Kill(s.cmd.Process)

	select {
	case <-s.done:
	case <-time.After(reapTimeout):
		r.logger.WarnContext(ctx, "session process not reaped after kill",
			slog.String("session_id", s.id),
		)
	}
	s.markTerminated()

	attrs := []any{
		slog.String("session_id", s.id),
		slog.String("reason", string(reason)),
	}
	if killErr != nil {
		attrs = append(attrs, slog.String("kill_error", killErr.Error()))
	}
	r.logger.InfoContext(ctx, "session terminated", attrs...)
	for _, o := range r.observers {
		o.SessionTerminated(s.info(), reason)
	}
	if killErr != nil {
		return fmt.Errorf("killing session %s: %w", s.id, killErr)
	}
	return nil
}

// Sweep terminates every session idle for longer than IdleTimeout. Idleness
// is re-checked under the session's op lock, so an in-flight Write always
// wins against the sweep.
func (r *Registry) Sweep() {
	ctx := context.Background()
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	candidates := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			candidates = append(candidates, s)
		}
	}
	r.mu.Unlock()

	for _, s := range candidates {
		s.op.Lock()
		if s.idleSince().Before(r.now().Add(-r.cfg.IdleTimeout)) {
			if err := r.terminateHeld(ctx, s, ReasonIdle); err != nil {
				r.logger.Warn("idle reap failed",
					slog.String("session_id", s.id),
					slog.String("error", err.Error()),
				)
			}
		}
		s.op.Unlock()
	}
}

// Start schedules the idle sweep every SweepInterval. Returns a stop function
// that halts the schedule and waits for a running sweep to finish.
func (r *Registry) Start(ctx context.Context) func() {
	c := cron.New()
	c.Schedule(cron.Every(r.cfg.SweepInterval), cron.FuncJob(r.Sweep))
	c.Start()

	r.logger.InfoContext(ctx, "session sweep started",
		slog.Duration("interval", r.cfg.SweepInterval),
		slog.Duration("idle_timeout", r.cfg.IdleTimeout),
	)

	stop := func() { <-c.Stop().Done() }
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop
}

// Close terminates every session.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.op.Lock()
		_ = r.terminateHeld(ctx, s, ReasonShutdown)
		s.op.Unlock()
	}
}

// Get returns a snapshot of a live session.
func (r *Registry) Get(id string) (Info, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return s.info(), nil
}

// List returns snapshots of all live sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.info())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
