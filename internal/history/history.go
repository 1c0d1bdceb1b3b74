// Package history records executions and session lifecycle transitions.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL.
// Recording is best effort: a failing store is logged and never fails the
// operation being recorded.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/shellguard/internal/executor"
	"github.com/jkaninda/shellguard/internal/session"
)

// Kind classifies an Event.
type Kind string

const (
	KindExecution         Kind = "execution"
	KindSessionCreated    Kind = "session_created"
	KindSessionTerminated Kind = "session_terminated"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// writeTimeout bounds a single Append issued by the Recorder.
const writeTimeout = 2 * time.Second

// Event is one history row.
type Event struct {
	ID               uuid.UUID     `json:"id"`
	Kind             Kind          `json:"kind"`
	SessionID        string        `json:"sessionId,omitempty"`
	Command          string        `json:"command,omitempty"`
	Args             []string      `json:"args,omitempty"`
	WorkingDirectory string        `json:"workingDirectory,omitempty"`
	ExitCode         int           `json:"exitCode"`
	Interactive      bool          `json:"interactive"`
	Reason           string        `json:"reason,omitempty"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// Filter narrows Recent.
type Filter struct {
	Kind      Kind
	SessionID string
	Limit     int // Default: 100.
}

// Store persists events. Implementations are safe for concurrent use.
type Store interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, f Filter) ([]Event, error)
	Ping(ctx context.Context) error
	Close() error
}

// Recorder adapts a Store to executor.Recorder and session.Observer.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ executor.Recorder = (*Recorder)(nil)
	_ session.Observer  = (*Recorder)(nil)
)

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// RecordExecution stores one execution attempt, including rejected ones.
func (r *Recorder) RecordExecution(ctx context.Context, req executor.Request, res *executor.Result, err error) {
	e := Event{
		Kind:             KindExecution,
		SessionID:        req.SessionID,
		Command:          req.Command,
		Args:             req.Args,
		WorkingDirectory: req.WorkingDirectory,
	}
	if res != nil {
		e.ExitCode = res.ExitCode
		e.Interactive = res.Interactive
		e.Reason = res.Reason
		e.Duration = res.Duration
		if res.SessionID != "" {
			e.SessionID = res.SessionID
		}
		if res.WorkingDirectory != "" {
			e.WorkingDirectory = res.WorkingDirectory
		}
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.append(context.WithoutCancel(ctx), e)
}

// SessionCreated implements session.Observer.
func (r *Recorder) SessionCreated(info session.Info) {
	r.append(context.Background(), Event{
		Kind:             KindSessionCreated,
		SessionID:        info.ID,
		Command:          info.Shell,
		WorkingDirectory: info.Dir,
		Interactive:      true,
	})
}

// SessionTerminated implements session.Observer.
func (r *Recorder) SessionTerminated(info session.Info, reason session.Reason) {
	r.append(context.Background(), Event{
		Kind:             KindSessionTerminated,
		SessionID:        info.ID,
		WorkingDirectory: info.Dir,
		Interactive:      true,
		Reason:           string(reason),
		Duration:         info.LastActivityAt.Sub(info.CreatedAt),
	})
}

func (r *Recorder) append(ctx context.Context, e Event) {
	e.ID = uuid.New()
	e.CreatedAt = r.now().UTC()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "history append failed",
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
