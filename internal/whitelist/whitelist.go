// Package whitelist persists and serves the set of approved root directories.
//
// The store keeps a single in-memory copy that is read lazily from disk on
// first use and refreshed on every mutation. Mutations are written through to
// disk before they become visible, so a successful Add survives a crash.
// Missing or corrupt state is never an error for readers: the store falls back
// to a probed default directory and persists that instead.
package whitelist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/jkaninda/shellguard/internal/pathutil"
)

// ErrWhitelistIO is wrapped by errors caused by reading or writing the whitelist file.
var ErrWhitelistIO = errors.New("whitelist io error")

// fileState is the on-disk representation.
type fileState struct {
	Directories []string  `json:"directories"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Option customizes a Store.
type Option func(*Store)

// WithHomeDir overrides the home directory used for default-root probing.
func WithHomeDir(home string) Option {
	return func(s *Store) { s.homeDir = home }
}

// WithPreferredRoot puts dir ahead of the platform candidates when probing
// for the initial root.
func WithPreferredRoot(dir string) Option {
	return func(s *Store) { s.preferred = dir }
}

// WithClock overrides the time source used for lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the whitelist of approved roots. Safe for concurrent use.
type Store struct {
	path      string
	homeDir   string
	preferred string
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	state *fileState // nil until first load or after Invalidate
}

// New creates a Store backed by the JSON file at path. Nothing is read until
// the first call that needs the list.
func New(path string, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		path:   path,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// List returns a copy of the approved roots. Never empty.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.state.Directories), nil
}

// Add canonicalizes path and inserts it if absent. The file is rewritten
// before the in-memory copy changes; a failed write leaves the list untouched.
func (s *Store) Add(ctx context.Context, path string) error {
	canonical, err := pathutil.Canonical(path)
	if err != nil {
		return fmt.Errorf("canonicalizing %q: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	if slices.Contains(s.state.Directories, canonical) {
		return nil
	}

	next := &fileState{
		Directories: append(slices.Clone(s.state.Directories), canonical),
		LastUpdated: s.now(),
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next

	s.logger.InfoContext(ctx, "whitelist directory added", slog.String("path", canonical))
	return nil
}

// Remove canonicalizes path and deletes the matching entry. Removing a path
// that is not present is a no-op. Removing the last entry is refused, since
// the set must never be empty.
func (s *Store) Remove(ctx context.Context, path string) error {
	canonical, err := pathutil.Canonical(path)
	if err != nil {
		return fmt.Errorf("canonicalizing %q: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	idx := slices.Index(s.state.Directories, canonical)
	if idx < 0 {
		return nil
	}
	if len(s.state.Directories) == 1 {
		return fmt.Errorf("cannot remove %s: whitelist must keep at least one directory", canonical)
	}

	next := &fileState{
		Directories: slices.Delete(slices.Clone(s.state.Directories), idx, idx+1),
		LastUpdated: s.now(),
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next

	s.logger.InfoContext(ctx, "whitelist directory removed", slog.String("path", canonical))
	return nil
}

// Invalidate drops the in-memory copy so the next read goes back to disk.
// Used when the file is edited by another process.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.state = nil
	s.mu.Unlock()
}

// loadLocked materializes s.state. Caller holds s.mu.
func (s *Store) loadLocked(ctx context.Context) error {
	if s.state != nil {
		return nil
	}

	state, err := s.read()
	if err == nil {
		s.state = state
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		s.logger.WarnContext(ctx, "whitelist state unreadable, reinitializing",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}

	root := s.defaultDirectory()
	state = &fileState{Directories: []string{root}, LastUpdated: s.now()}
	if perr := s.persist(state); perr != nil {
		// Serve the default from memory; the next mutation retries the write.
		s.logger.WarnContext(ctx, "persisting default whitelist failed",
			slog.String("path", s.path),
			slog.String("error", perr.Error()),
		)
	}
	s.state = state
	s.logger.InfoContext(ctx, "whitelist initialized", slog.String("root", root))
	return nil
}

// read parses the file and canonicalizes its entries. An empty or
// unparseable file is reported as an error so the caller reinitializes.
func (s *Store) read() (*fileState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrWhitelistIO, s.path, err)
	}

	dirs := make([]string, 0, len(st.Directories))
	for _, d := range st.Directories {
		if d == "" {
			continue
		}
		c, err := pathutil.Canonical(d)
		if err != nil {
			s.logger.Warn("skipping unresolvable whitelist entry",
				slog.String("entry", d),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !slices.Contains(dirs, c) {
			dirs = append(dirs, c)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: %s has no directories", ErrWhitelistIO, s.path)
	}
	st.Directories = dirs
	return &st, nil
}

// persist rewrites the whole file through a temp file and rename.
func (s *Store) persist(st *fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWhitelistIO, filepath.Dir(s.path), err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrWhitelistIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".whitelist-*.json")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWhitelistIO, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: writing %s: %v", ErrWhitelistIO, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: syncing %s: %v", ErrWhitelistIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrWhitelistIO, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", ErrWhitelistIO, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrWhitelistIO, s.path, err)
	}
	return nil
}
