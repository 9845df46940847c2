package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes the result
// to fn. The parent directory is watched so that atomic replacement by
// rename is seen. Watch returns once the watcher is set up; it stops when
// ctx is done.
func Watch(ctx context.Context, path string, fn func(Config, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go runWatch(ctx, w, abs, fn)
	return nil
}

func runWatch(ctx context.Context, w *fsnotify.Watcher, path string, fn func(Config, error)) {
	defer w.Close()

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		target = filepath.Clean(path)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			fn(Config{}, fmt.Errorf("watch %s: %w", path, err))
		case <-fire:
			fire = nil
			cfg, err := Load(path)
			fn(cfg, err)
		}
	}
}
