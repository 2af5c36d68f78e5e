package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/rampart/pkg/config"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/graph"
	"mercator-hq/rampart/pkg/rules/parser"
	"mercator-hq/rampart/pkg/telemetry/metrics"
)

const baselineRules = `id: baseline
applicability: ["**/*"]
alwaysApply: true
clauses:
  input-validation:
    - kind: prohibition
      predicate: {feature: usesRawEval, value: true}
      severity: fatal
`

const webRules = `id: web
applicability: ["**/*.ts"]
delegates:
  - domain: input-validation
    to: baseline
clauses:
  secrets:
    - kind: prohibition
      predicate: {feature: secretInClientBundle, value: true}
      severity: fatal
`

const danglingRules = `id: web
applicability: ["**/*.ts"]
delegates:
  - domain: input-validation
    to: missing
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func fileConfig(dir string) config.RulesConfig {
	return config.RulesConfig{Mode: ModeFile, Path: dir, Debounce: 20 * time.Millisecond}
}

func newManager(t *testing.T, cfg config.RulesConfig) (*Manager, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Options{Logger: discard()})
	m, err := New(cfg, eng, metrics.NewCollector(metrics.DefaultNamespace, nil), discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, eng
}

func TestNew(t *testing.T) {
	eng := engine.New(engine.Options{Logger: discard()})

	tests := []struct {
		name    string
		cfg     config.RulesConfig
		eng     *engine.Engine
		wantErr bool
	}{
		{name: "file mode", cfg: fileConfig(t.TempDir()), eng: eng},
		{name: "mode defaults to file", cfg: config.RulesConfig{Path: t.TempDir()}, eng: eng},
		{name: "nil engine", cfg: fileConfig(t.TempDir()), wantErr: true},
		{name: "empty path", cfg: config.RulesConfig{Mode: ModeFile}, eng: eng, wantErr: true},
		{name: "unknown mode", cfg: config.RulesConfig{Mode: "s3", Path: "x"}, eng: eng, wantErr: true},
		{name: "git mode", cfg: config.RulesConfig{Mode: ModeGit, Git: config.GitConfig{
			Repository: "https://example.com/rules.git", Branch: "main", LocalPath: t.TempDir(),
			Auth: config.GitAuthConfig{Type: "none"},
		}}, eng: eng},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.eng, nil, discard())
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "baseline.yaml", baselineRules)
	writeFile(t, dir, "web/web.yml", webRules)
	writeFile(t, dir, ".hidden/ignored.yaml", "not: [valid")
	writeFile(t, dir, "README.md", "# rules")

	m, eng := newManager(t, fileConfig(dir))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	g := eng.Graph()
	if g == nil {
		t.Fatal("engine graph is nil after Load")
	}
	if g.Len() != 2 {
		t.Errorf("graph documents = %d, want 2", g.Len())
	}
	if err := eng.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}

	st := m.Status()
	if st.Documents != 2 || st.Loads != 1 || st.Failures != 0 || st.Version != g.Version() {
		t.Errorf("Status() = %+v", st)
	}
}

func TestLoadKeepsPreviousGraph(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "baseline.yaml", baselineRules)
	writeFile(t, dir, "web.yaml", webRules)

	m, eng := newManager(t, fileConfig(dir))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	version := eng.Graph().Version()

	tests := []struct {
		name    string
		content string
		stage   Stage
	}{
		{name: "dangling delegation", content: danglingRules, stage: StageBuild},
		{name: "malformed yaml", content: "id: web\nclauses: [", stage: StageParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFile(t, dir, "web.yaml", tt.content)

			err := m.Load(context.Background())
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Load() error = %v, want *LoadError", err)
			}
			if le.Stage != tt.stage {
				t.Errorf("Stage = %s, want %s", le.Stage, tt.stage)
			}
			if got := eng.Graph().Version(); got != version {
				t.Errorf("graph version = %s, want previous %s", got, version)
			}
			if err := eng.Ready(context.Background()); err != nil {
				t.Errorf("Ready() error = %v, previous graph should stay active", err)
			}
		})
	}

	if st := m.Status(); st.Failures != 2 || st.LastError == "" {
		t.Errorf("Status() = %+v, want 2 failures", st)
	}
}

func TestLoadErrorKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "web.yaml", danglingRules)

	m, _ := newManager(t, fileConfig(dir))
	err := m.Load(context.Background())
	if !IsLoadError(err) {
		t.Fatalf("Load() error = %v, want load error", err)
	}
	var ce *graph.ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("Load() error = %v, want *graph.ConfigError in chain", err)
	}

	writeFile(t, dir, "web.yaml", "id: web\nbogus: true\n")
	err = m.Load(context.Background())
	var pe *parser.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Load() error = %v, want *parser.ParseError in chain", err)
	}
}

func TestFirstLoadFailureInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "web.yaml", danglingRules)

	m, eng := newManager(t, fileConfig(dir))
	if err := m.Load(context.Background()); err == nil {
		t.Fatal("Load() error = nil, want build error")
	}

	err := eng.Ready(context.Background())
	if !IsLoadError(err) {
		t.Errorf("Ready() error = %v, want load error cause", err)
	}
}

func TestWatchDisabled(t *testing.T) {
	m, _ := newManager(t, fileConfig(t.TempDir()))
	if err := m.Watch(context.Background()); !errors.Is(err, ErrWatchDisabled) {
		t.Errorf("Watch() error = %v, want ErrWatchDisabled", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "baseline.yaml", baselineRules)

	cfg := fileConfig(dir)
	cfg.Watch = true
	m, eng := newManager(t, cfg)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "web.yaml", webRules)
	if !waitFor(t, 3*time.Second, func() bool { return eng.Graph().Len() == 2 }) {
		t.Fatalf("graph documents = %d after adding a file, want 2", eng.Graph().Len())
	}
	good := eng.Graph().Version()

	writeFile(t, dir, "web.yaml", danglingRules)
	if !waitFor(t, 3*time.Second, func() bool { return m.Status().Failures > 0 }) {
		t.Fatal("invalid edit did not trigger a reload")
	}
	if got := eng.Graph().Version(); got != good {
		t.Errorf("graph version = %s after invalid edit, want %s", got, good)
	}

	if err := m.Watch(ctx); !errors.Is(err, ErrAlreadyWatching) {
		t.Errorf("second Watch() error = %v, want ErrAlreadyWatching", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer d.stop()

	for i := 0; i < 10; i++ {
		d.trigger()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := newDebouncer(20*time.Millisecond, func() { calls.Add(1) })
	d.trigger()
	d.stop()
	d.trigger()
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times after stop, want 0", got)
	}
}

// sourceRepo is a local repository standing in for the remote.
type sourceRepo struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newSourceRepo(t *testing.T) *sourceRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	return &sourceRepo{t: t, dir: dir, repo: repo}
}

func (s *sourceRepo) commit(msg string, files map[string]string) string {
	s.t.Helper()
	wt, err := s.repo.Worktree()
	if err != nil {
		s.t.Fatalf("failed to get worktree: %v", err)
	}
	for name, content := range files {
		writeFile(s.t, s.dir, name, content)
		if _, err := wt.Add(name); err != nil {
			s.t.Fatalf("failed to add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		s.t.Fatalf("failed to commit: %v", err)
	}
	return hash.String()
}

func TestGitMode(t *testing.T) {
	src := newSourceRepo(t)
	first := src.commit("baseline", map[string]string{"rules/baseline.yaml": baselineRules})

	cfg := config.RulesConfig{
		Mode: ModeGit,
		Git: config.GitConfig{
			Repository:   src.dir,
			Branch:       "master",
			Path:         "rules",
			LocalPath:    filepath.Join(t.TempDir(), "checkout"),
			PollInterval: time.Hour,
			Timeout:      10 * time.Second,
			Auth:         config.GitAuthConfig{Type: "none"},
		},
	}
	m, eng := newManager(t, cfg)

	ctx := context.Background()
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := eng.Graph().Version(); got != first {
		t.Errorf("graph version = %s, want HEAD %s", got, first)
	}

	second := src.commit("web rules", map[string]string{"rules/web.yaml": webRules})
	reloaded, err := m.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !reloaded {
		t.Error("Sync() = false, want reload")
	}
	if got := eng.Graph().Version(); got != second {
		t.Errorf("graph version = %s, want %s", got, second)
	}
	if eng.Graph().Len() != 2 {
		t.Errorf("graph documents = %d, want 2", eng.Graph().Len())
	}

	src.commit("docs only", map[string]string{"README.md": "# rules"})
	reloaded, err = m.Sync(ctx)
	if err != nil || reloaded {
		t.Errorf("Sync() = %v, %v, want no reload for non-rule change", reloaded, err)
	}

	src.commit("break delegation", map[string]string{"rules/web.yaml": danglingRules})
	if _, err := m.Sync(ctx); err == nil {
		t.Error("Sync() error = nil, want rejected reload")
	}
	if got := eng.Graph().Version(); got != second {
		t.Errorf("graph version = %s after rejected reload, want %s", got, second)
	}
}

func TestSyncRequiresGitMode(t *testing.T) {
	m, _ := newManager(t, fileConfig(t.TempDir()))
	if _, err := m.Sync(context.Background()); err == nil {
		t.Error("Sync() error = nil in file mode")
	}
	if err := m.Poll(context.Background()); err == nil {
		t.Error("Poll() error = nil in file mode")
	}
}
