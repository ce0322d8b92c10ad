package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period after the last write before a
// reload is attempted.
const DefaultDebounceInterval = 150 * time.Millisecond

// Watch reloads the store when its file changes and calls onChange after each
// successful reload. The parent directory is watched so editors that replace
// the file are seen. Watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch settings dir %q: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Reload(); err != nil {
			logger.Warn("settings reload failed", "path", s.path, "error", err.Error())
			return
		}
		logger.Debug("settings reloaded", "path", s.path)
		if onChange != nil {
			onChange()
		}
	}

	go func() {
		defer watcher.Close()
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		name := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(DefaultDebounceInterval, reload)
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error", "error", err.Error())
			}
		}
	}()

	return nil
}
