package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a Registry when its policy files change.
// Rapid bursts of events (editors write, rename, chmod) are debounced into
// a single reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	path     string
	logger   *zap.Logger
	debounce *Debouncer
}

// NewWatcher creates a watcher for path. Call Run to start it.
func NewWatcher(registry *Registry, path string, interval time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		registry: registry,
		path:     path,
		logger:   logger,
		debounce: NewDebouncer(interval),
	}, nil
}

// Run watches until ctx is cancelled. It always closes the underlying
// fsnotify watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer w.debounce.Stop()

	// Watch the parent directory of a single file: editors and config
	// management replace files by rename, which drops a file-level watch.
	target, fileFilter, err := watchTarget(w.path)
	if err != nil {
		return err
	}
	if err := w.watcher.Add(target); err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}

	w.logger.Info("policy watcher started",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounce.interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !shouldProcess(event, fileFilter) {
				continue
			}

			w.logger.Debug("policy file event",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()),
			)
			w.debounce.Trigger(func() {
				// Reload logs its own outcome.
				_, _ = w.registry.Reload(ctx)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("policy watcher error", zap.Error(err))
		}
	}
}

// watchTarget returns the directory to watch and, for a single-file path,
// the cleaned file name events must match.
func watchTarget(path string) (dir, file string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return path, "", nil
	}
	return filepath.Dir(path), filepath.Clean(path), nil
}

// shouldProcess filters out chmod-only events, hidden files, files with
// other extensions and, when watching one file, its siblings.
func shouldProcess(event fsnotify.Event, file string) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if file != "" {
		return filepath.Clean(event.Name) == file
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return IsPolicyFile(base)
}

// Debouncer collects rapid triggers and runs the last callback once the
// interval passes without a new trigger.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
