package manager

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/rampart/pkg/rules/parser"
)

// watchFiles watches the rule directory tree and reloads after a quiet
// period following the last relevant event.
func (m *Manager) watchFiles(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, m.cfg.Path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", m.cfg.Path, err)
	}

	deb := newDebouncer(m.cfg.Debounce, func() {
		if err := m.Load(ctx); err != nil {
			m.logger.Error("Rule reload failed", "error", err)
		}
	})
	defer deb.stop()

	m.logger.Info("File watcher started",
		"path", m.cfg.Path,
		"debounce_ms", m.cfg.Debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("File watcher stopped")
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) && !hidden(event.Name) {
				if err := addTree(w, event.Name); err != nil {
					m.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
				}
				deb.trigger()
				continue
			}
			if !relevant(event) {
				continue
			}
			m.logger.Debug("Rule file event", "path", event.Name, "op", event.Op.String())
			deb.trigger()

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			m.logger.Error("File watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// A removed directory no longer stats, so only the name is checked.
		return !hidden(event.Name)
	}
	return parser.IsRuleFile(event.Name)
}

// addTree watches root and every non-hidden directory below it.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// debouncer runs fn once interval has passed without another trigger.
type debouncer struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer(interval time.Duration, fn func()) *debouncer {
	return &debouncer{interval: interval, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped {
		d.fn()
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
