// Package watch drives rebuild-on-change for unit files. Editors save in
// bursts (and often replace the file wholesale), so the watch sits on the
// containing directory and debounces events before invoking the rebuild.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required after the last relevant
// event before a rebuild runs.
const DefaultDebounce = 200 * time.Millisecond

// Watcher rebuilds a unit file's output whenever the file changes.
type Watcher struct {
	fsw *fsnotify.Watcher

	// Debounce overrides DefaultDebounce when set before Run.
	Debounce time.Duration
}

// New creates a Watcher backed by OS-native notifications.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{fsw: fsw, Debounce: DefaultDebounce}, nil
}

// Close releases the underlying OS watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run watches path and invokes rebuild after each debounced change, until
// ctx is cancelled. Rebuild errors are logged and the watch continues; a
// broken unit file should not end the session.
func (w *Watcher) Run(ctx context.Context, path string, rebuild func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	slog.Info("watching for changes", "path", abs)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, abs) {
				continue
			}
			slog.Debug("unit file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.Debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := rebuild(); err != nil {
				slog.Error("rebuild failed", "error", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		}
	}
}

// relevant reports whether ev touches the watched file. Atomic saves land
// as a create or rename of the target name, plain saves as writes.
func relevant(ev fsnotify.Event, abs string) bool {
	if filepath.Clean(ev.Name) != abs {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}
