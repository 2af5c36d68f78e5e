package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/graph"
	"mercator-hq/rampart/pkg/rules/git"
	"mercator-hq/rampart/pkg/rules/parser"
	"mercator-hq/rampart/pkg/telemetry/metrics"
)

const (
	ModeFile = "file"
	ModeGit  = "git"
)

// Status describes the most recent load.
type Status struct {
	Mode      string    `json:"mode"`
	Source    string    `json:"source"`
	Version   string    `json:"version,omitempty"`
	Documents int       `json:"documents"`
	LastLoad  time.Time `json:"last_load,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Loads     int64     `json:"loads"`
	Failures  int64     `json:"failures"`
}

// Manager owns the rule source and feeds built graphs to an engine.
type Manager struct {
	cfg     config.RulesConfig
	engine  *engine.Engine
	metrics *metrics.Collector
	parser  *parser.Parser
	logger  *slog.Logger

	repo       *git.Repository
	gitWatcher *git.Watcher

	// mu serialises loads.
	mu     sync.Mutex
	status Status

	watchMu  sync.Mutex
	watching bool
}

// New creates a manager. Nothing is read until Load is called.
func New(cfg config.RulesConfig, eng *engine.Engine, collector *metrics.Collector, logger *slog.Logger) (*Manager, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFile
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = config.DefaultRulesDebounce
	}

	p := parser.NewParser()
	if cfg.MaxFileSize > 0 {
		p = p.WithMaxFileSize(cfg.MaxFileSize)
	}

	m := &Manager{
		cfg:     cfg,
		engine:  eng,
		metrics: collector,
		parser:  p,
		logger:  logger.With("component", "policy.manager"),
		status:  Status{Mode: cfg.Mode, Source: cfg.Path},
	}

	switch cfg.Mode {
	case ModeFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("rules path cannot be empty in file mode")
		}
	case ModeGit:
		repo, err := git.NewRepository(cfg.Git)
		if err != nil {
			return nil, fmt.Errorf("failed to create git repository: %w", err)
		}
		m.repo = repo
		m.gitWatcher = git.NewWatcher(repo, cfg.Git.PollInterval, m.reloadCommit, logger)
		m.status.Source = cfg.Git.Repository
	default:
		return nil, fmt.Errorf("unknown rules mode %q", cfg.Mode)
	}

	return m, nil
}

// Load reads the document set and swaps the resulting graph into the
// engine. In git mode the repository is cloned first if needed.
func (m *Manager) Load(ctx context.Context) error {
	if m.cfg.Mode == ModeGit {
		return m.loadGit(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(m.cfg.Path, "")
}

func (m *Manager) loadGit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.Clone(ctx); err != nil {
		return m.fail(&LoadError{Stage: StageSource, Path: m.cfg.Git.Repository, Cause: err}, time.Now())
	}
	head, err := m.repo.Head()
	if err != nil {
		return m.fail(&LoadError{Stage: StageSource, Path: m.cfg.Git.Repository, Cause: err}, time.Now())
	}
	m.logger.Info("Loading rules from repository",
		"repository", m.cfg.Git.Repository,
		"branch", m.cfg.Git.Branch,
		"commit", head.Short(),
	)
	return m.load(m.repo.RulePath(), head.SHA)
}

// reloadCommit is the git watcher's reload hook.
func (m *Manager) reloadCommit(_ context.Context, head *git.CommitInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(m.repo.RulePath(), head.SHA)
}

// load parses and builds dir. Callers hold mu.
func (m *Manager) load(dir, version string) error {
	start := time.Now()

	docs, err := m.parser.ParseDir(dir)
	if err != nil {
		return m.fail(&LoadError{Stage: StageParse, Path: dir, Cause: err}, start)
	}
	if len(docs) == 0 {
		m.logger.Warn("No rule documents found", "path", dir)
	}

	g, err := graph.BuildWithOptions(docs, graph.Options{CollectAll: true, Version: version})
	if err != nil {
		return m.fail(&LoadError{Stage: StageBuild, Path: dir, Cause: err}, start)
	}

	m.engine.Swap(g)
	m.metrics.RecordGraphBuild(true, g.Len())

	m.status.Version = g.Version()
	m.status.Documents = g.Len()
	m.status.LastLoad = time.Now()
	m.status.LastError = ""
	m.status.Loads++

	m.logger.Info("Rules loaded",
		"count", g.Len(),
		"version", g.Version(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// fail records a rejected load. The active graph is kept; with none active
// the engine is invalidated.
func (m *Manager) fail(err *LoadError, start time.Time) error {
	m.metrics.RecordGraphBuild(false, 0)
	m.status.LastError = err.Error()
	m.status.Failures++

	if m.engine.Graph() == nil {
		m.engine.Invalidate(err)
		return err
	}
	m.logger.Error("Rule load failed, keeping previous graph",
		"stage", err.Stage,
		"version", m.engine.Graph().Version(),
		"error", err.Cause,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

// Status returns a copy of the load status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Repository returns the git source, or nil in file mode.
func (m *Manager) Repository() *git.Repository {
	return m.repo
}

// Sync pulls once and reloads when rule files changed. It is only valid in
// git mode.
func (m *Manager) Sync(ctx context.Context) (bool, error) {
	if m.gitWatcher == nil {
		return false, fmt.Errorf("sync requires git mode")
	}
	return m.gitWatcher.Check(ctx)
}

// Watch blocks, reloading on changes until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	if !m.cfg.Watch {
		return ErrWatchDisabled
	}

	m.watchMu.Lock()
	if m.watching {
		m.watchMu.Unlock()
		return ErrAlreadyWatching
	}
	m.watching = true
	m.watchMu.Unlock()

	defer func() {
		m.watchMu.Lock()
		m.watching = false
		m.watchMu.Unlock()
	}()

	if m.cfg.Mode == ModeGit {
		return m.Poll(ctx)
	}
	return m.watchFiles(ctx)
}

// Poll runs the git watcher until ctx is cancelled.
func (m *Manager) Poll(ctx context.Context) error {
	if m.gitWatcher == nil {
		return fmt.Errorf("poll requires git mode")
	}

	m.logger.Info("Starting repository poller",
		"repository", m.cfg.Git.Repository,
		"branch", m.cfg.Git.Branch,
		"poll_interval", m.cfg.Git.PollInterval,
	)
	if err := m.gitWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start git watcher: %w", err)
	}
	<-ctx.Done()
	m.gitWatcher.Stop()
	return nil
}

// IsLoadError reports whether err came from a rejected load.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
