package git

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReloadFunc rebuilds rules from the checkout at head. An error means the
// new revision was rejected and the caller kept its previous rules.
type ReloadFunc func(ctx context.Context, head *CommitInfo) error

// WatcherMetrics tracks watcher activity.
type WatcherMetrics struct {
	PollCount         int64
	SuccessfulReloads int64
	FailedReloads     int64
	SkippedPolls      int64
	LastReloadTime    time.Time
	LastReloadDur     time.Duration
}

// Watcher polls a repository and reloads when rule files change.
//
//	w := git.NewWatcher(repo, time.Minute, reload, logger)
//	if err := w.Start(ctx); err != nil {
//		return err
//	}
//	defer w.Stop()
type Watcher struct {
	repo     *Repository
	interval time.Duration
	reload   ReloadFunc
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	lastSHA string
	metrics WatcherMetrics
}

// NewWatcher creates a watcher. A nil logger uses slog.Default().
func NewWatcher(repo *Repository, interval time.Duration, reload ReloadFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		repo:     repo,
		interval: interval,
		reload:   reload,
		logger:   logger.With("component", "rules.git"),
	}
}

// Start records the current HEAD and begins polling in the background.
func (w *Watcher) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", w.interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	head, err := w.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get initial commit: %w", err)
	}
	w.lastSHA = head.SHA
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("Rule repository watcher started",
		"poll_interval", w.interval,
		"commit", head.Short())

	go w.loop(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop ends polling and waits for an in-flight check to finish. It is safe
// to call on a stopped watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.logger.Info("Rule repository watcher stopped")
}

// IsRunning reports whether the polling loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastSHA returns the last commit the watcher accepted.
func (w *Watcher) LastSHA() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSHA
}

// Metrics returns a copy of the watcher metrics.
func (w *Watcher) Metrics() WatcherMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *Watcher) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil {
				w.logger.Error("Rule repository check failed", "error", err)
			}
		}
	}
}

// Check pulls once and reloads when rule files changed. It reports whether
// a reload succeeded. Changes that touch no rule file advance the accepted
// commit without a reload.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	w.mu.Lock()
	w.metrics.PollCount++
	w.mu.Unlock()

	result, err := w.repo.Pull(ctx)
	if err != nil {
		return false, err
	}
	if !result.HadChanges {
		return false, nil
	}

	w.logger.Info("Detected rule repository changes",
		"from_sha", shortSHA(result.FromSHA),
		"to_sha", shortSHA(result.ToSHA),
		"changed_files", len(result.ChangedFiles))

	if !w.touchesRules(result.ChangedFiles) {
		w.mu.Lock()
		w.metrics.SkippedPolls++
		w.lastSHA = result.ToSHA
		w.mu.Unlock()
		w.logger.Debug("No rule files changed, skipping reload", "files", result.ChangedFiles)
		return false, nil
	}

	head, err := w.repo.Head()
	if err != nil {
		return false, err
	}

	start := time.Now()
	err = w.reload(ctx, head)
	elapsed := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.metrics.LastReloadTime = time.Now()
	w.metrics.LastReloadDur = elapsed

	if err != nil {
		w.metrics.FailedReloads++
		return false, fmt.Errorf("reload of %s rejected, keeping %s: %w",
			head.Short(), shortSHA(w.lastSHA), err)
	}

	w.metrics.SuccessfulReloads++
	w.logger.Info("Reloaded rules from repository",
		"from_sha", shortSHA(w.lastSHA),
		"to_sha", head.Short(),
		"duration_ms", elapsed.Milliseconds())
	w.lastSHA = head.SHA
	return true, nil
}

func (w *Watcher) touchesRules(files []string) bool {
	for _, f := range files {
		if w.repo.IsRuleChange(f) {
			return true
		}
	}
	return false
}
