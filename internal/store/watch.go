package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch signals when the database file is written, by this process or
// another one (the service, a CLI call). Bursts within debounce collapse
// into one signal. The channel closes when ctx is done.
func (s Store) Watch(ctx context.Context, debounce time.Duration) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: SQLite writes land in the -wal sidecar and the
	// main file is replaced on checkpoint.
	if err := w.Add(s.Dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", s.Dir, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isDatabaseFile(ev.Name) || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func isDatabaseFile(name string) bool {
	switch filepath.Base(name) {
	case sqliteFileName, sqliteFileName + "-wal":
		return true
	}
	return false
}
