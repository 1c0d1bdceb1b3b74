package whitelist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates the in-memory copy whenever the whitelist file changes on
// disk, so edits made by another process (or by hand) are picked up on the
// next read. It blocks until ctx is canceled.
//
// The parent directory is watched rather than the file itself because
// editors and our own persist replace the file by rename.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWhitelistIO, dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.Invalidate()
			s.logger.Debug("whitelist file changed, cache invalidated",
				slog.String("path", s.path),
				slog.String("op", ev.Op.String()),
			)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("whitelist watcher error", slog.String("error", werr.Error()))
		}
	}
}
