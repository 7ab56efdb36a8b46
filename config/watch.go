package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the result of Load every time the file at path is
// written or replaced. It blocks until ctx is done or the watcher fails to
// start. Watcher errors are passed to fn and do not stop the watch.
//
// A typical use feeds the slow statement threshold of a running storage:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        stats.SetSlowThreshold(cfg.SlowThreshold)
//	    }
//	})
func Watch(ctx context.Context, path string, fn func(*Config, error), envFiles ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	// Editors save by renaming over the file, which drops a watch on the
	// file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	name := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fn(Load(path, envFiles...))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(nil, fmt.Errorf("config: watch: %w", err))
		}
	}
}
