package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// noteWatcher re-runs a callback when a single file changes. Editors often
// replace files with rename and create, so the parent directory is watched
// and events are filtered by name.
type noteWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

func newNoteWatcher(path string, debounce time.Duration) (*noteWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving note path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &noteWatcher{path: abs, debounce: debounce, watcher: w}, nil
}

// Run calls onChange after each burst of writes to the file settles, until
// ctx is done or onChange returns an error.
func (w *noteWatcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := onChange(ctx); err != nil {
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching note: %w", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *noteWatcher) Close() error {
	return w.watcher.Close()
}
