package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/shellguard/internal/executor"
	"github.com/jkaninda/shellguard/internal/history"
	"github.com/jkaninda/shellguard/internal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTemp(t *testing.T) history.Store {
	t.Helper()
	repo, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "history.db")}, discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}, discard); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAppendAndRecent(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []history.Event{
		{Kind: history.KindExecution, Command: "ls", Args: []string{"-la", "a b"}, WorkingDirectory: "/w", Duration: 1500 * time.Millisecond, CreatedAt: base},
		{Kind: history.KindSessionCreated, SessionID: "s1", CreatedAt: base.Add(time.Second)},
		{Kind: history.KindExecution, Command: "false", ExitCode: 1, SessionID: "s1", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Recent(ctx, history.Filter{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 || got[0].Command != "false" || got[2].Command != "ls" {
		t.Fatalf("Recent order = %+v", got)
	}
	if args := got[2].Args; len(args) != 2 || args[1] != "a b" {
		t.Errorf("args = %q", args)
	}
	if got[2].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", got[2].Duration)
	}

	got, err = store.Recent(ctx, history.Filter{Kind: history.KindExecution, SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ExitCode != 1 {
		t.Errorf("filtered = %+v", got)
	}

	got, _ = store.Recent(ctx, history.Filter{Limit: 1})
	if len(got) != 1 {
		t.Errorf("limit ignored: %d rows", len(got))
	}

	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	store := openTemp(t)
	rec := history.NewRecorder(store, discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled request context must not drop the record.
	rec.RecordExecution(ctx,
		executor.Request{WorkingDirectory: "w", Command: "echo"},
		&executor.Result{ExitCode: 0, WorkingDirectory: "/abs/w", Reason: "no interactive markers"},
		nil,
	)
	rec.RecordExecution(context.Background(), executor.Request{WorkingDirectory: "/etc", Command: "cat"}, nil, errors.New("path rejected"))

	now := time.Now()
	info := session.Info{ID: "s1", Dir: "/w", Shell: "/bin/sh", CreatedAt: now, LastActivityAt: now.Add(time.Minute)}
	rec.SessionCreated(info)
	rec.SessionTerminated(info, session.ReasonIdle)

	got, err := store.Recent(context.Background(), history.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("recorded %d events, want 4", len(got))
	}

	byKind := map[history.Kind]int{}
	for _, e := range got {
		byKind[e.Kind]++
		switch {
		case e.Kind == history.KindExecution && e.Command == "echo":
			if e.WorkingDirectory != "/abs/w" {
				t.Errorf("execution dir = %q", e.WorkingDirectory)
			}
		case e.Kind == history.KindExecution && e.Command == "cat":
			if e.Error != "path rejected" {
				t.Errorf("rejection error = %q", e.Error)
			}
		case e.Kind == history.KindSessionTerminated:
			if e.Reason != string(session.ReasonIdle) || e.Duration != time.Minute {
				t.Errorf("terminated = %+v", e)
			}
		}
	}
	if byKind[history.KindExecution] != 2 || byKind[history.KindSessionCreated] != 1 || byKind[history.KindSessionTerminated] != 1 {
		t.Errorf("kinds = %v", byKind)
	}
}
