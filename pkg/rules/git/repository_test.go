package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/rampart/pkg/config"
)

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
	s := &sourceRepo{t: t, dir: dir, repo: repo}
	s.commit("initial commit", map[string]string{
		"rules/baseline.yaml": "id: baseline\nalwaysApply: true\n",
	})
	return s
}

// commit writes files and commits them, returning the new SHA.
func (s *sourceRepo) commit(msg string, files map[string]string) string {
	s.t.Helper()
	wt, err := s.repo.Worktree()
	if err != nil {
		s.t.Fatalf("failed to get worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(s.dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			s.t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			s.t.Fatalf("write: %v", err)
		}
		if _, err := wt.Add(name); err != nil {
			s.t.Fatalf("failed to add %s: %v", name, err)
		}
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		s.t.Fatalf("failed to commit: %v", err)
	}
	return hash.String()
}

func (s *sourceRepo) config(t *testing.T) config.GitConfig {
	return config.GitConfig{
		Repository: s.dir,
		Branch:     "master", // go-git init creates "master"
		Path:       "rules",
		LocalPath:  t.TempDir(),
		Timeout:    10 * time.Second,
		Auth:       config.GitAuthConfig{Type: "none"},
	}
}

func cloned(t *testing.T, src *sourceRepo) *Repository {
	t.Helper()
	r, err := NewRepository(src.config(t))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if err := r.Clone(context.Background()); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	return r
}

func TestNewRepository(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.GitConfig
		wantErr bool
	}{
		{name: "empty repository URL", cfg: config.GitConfig{Branch: "main"}, wantErr: true},
		{name: "empty branch", cfg: config.GitConfig{Repository: "https://example.com/r.git"}, wantErr: true},
		{
			name:    "bad auth",
			cfg:     config.GitConfig{Repository: "https://example.com/r.git", Branch: "main", Auth: config.GitAuthConfig{Type: "token"}},
			wantErr: true,
		},
		{
			name: "valid config",
			cfg:  config.GitConfig{Repository: "https://example.com/r.git", Branch: "main"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := NewRepository(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRepository() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && repo.LocalPath() == "" {
				t.Error("LocalPath() is empty, want temp dir default")
			}
		})
	}
}

func TestRepository_Clone(t *testing.T) {
	src := newSourceRepo(t)
	r := cloned(t, src)

	if r.Metrics().CloneDuration == 0 {
		t.Error("Clone() did not record duration")
	}

	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	want, _ := src.repo.Head()
	if head.SHA != want.Hash().String() {
		t.Errorf("Head().SHA = %s, want %s", head.SHA, want.Hash())
	}
	if head.Message != "initial commit" || head.Author != "Test User" || head.Branch != "master" {
		t.Errorf("Head() = %+v", head)
	}
	if len(head.Short()) != 8 {
		t.Errorf("Short() = %q", head.Short())
	}
}

func TestRepository_CloneReopensExisting(t *testing.T) {
	src := newSourceRepo(t)
	cfg := src.config(t)

	first, _ := NewRepository(cfg)
	if err := first.Clone(context.Background()); err != nil {
		t.Fatalf("first Clone() error = %v", err)
	}
	second, _ := NewRepository(cfg)
	if err := second.Clone(context.Background()); err != nil {
		t.Fatalf("second Clone() error = %v", err)
	}

	a, _ := first.Head()
	b, _ := second.Head()
	if a.SHA != b.SHA {
		t.Errorf("reopened HEAD %s != %s", b.SHA, a.SHA)
	}
}

func TestRepository_CloneNonexistent(t *testing.T) {
	r, err := NewRepository(config.GitConfig{
		Repository: filepath.Join(t.TempDir(), "missing"),
		Branch:     "main",
		LocalPath:  t.TempDir(),
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if err := r.Clone(context.Background()); err == nil {
		t.Error("Clone() of missing repository succeeded")
	}
}

func TestRepository_NotCloned(t *testing.T) {
	r, _ := NewRepository(config.GitConfig{Repository: "x", Branch: "main"})

	if _, err := r.Head(); !errors.Is(err, ErrNotCloned) {
		t.Errorf("Head() error = %v, want ErrNotCloned", err)
	}
	if _, err := r.Pull(context.Background()); !errors.Is(err, ErrNotCloned) {
		t.Errorf("Pull() error = %v, want ErrNotCloned", err)
	}
	if _, err := r.History(5); !errors.Is(err, ErrNotCloned) {
		t.Errorf("History() error = %v, want ErrNotCloned", err)
	}
}

func TestRepository_ListRuleFiles(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("add rules", map[string]string{
		"rules/web.yml":         "id: web\n",
		"rules/nested/api.yaml": "id: api\n",
		"rules/.hidden.yaml":    "id: hidden\n",
		"rules/README.md":       "docs\n",
		"outside/ignored.yaml":  "id: outside\n",
	})
	r := cloned(t, src)

	files, err := r.ListRuleFiles()
	if err != nil {
		t.Fatalf("ListRuleFiles() error = %v", err)
	}

	var rel []string
	for _, f := range files {
		p, _ := filepath.Rel(r.RulePath(), f)
		rel = append(rel, filepath.ToSlash(p))
	}
	sort.Strings(rel)
	want := []string{"baseline.yaml", "nested/api.yaml", "web.yml"}
	if len(rel) != len(want) {
		t.Fatalf("ListRuleFiles() = %v, want %v", rel, want)
	}
	for i := range want {
		if rel[i] != want[i] {
			t.Errorf("file[%d] = %s, want %s", i, rel[i], want[i])
		}
	}
}

func TestRepository_PullAndChangedFiles(t *testing.T) {
	src := newSourceRepo(t)
	r := cloned(t, src)

	result, err := r.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if result.HadChanges {
		t.Errorf("Pull() with no upstream change reported changes: %+v", result)
	}

	newSHA := src.commit("tighten secrets", map[string]string{
		"rules/secrets.yaml": "id: secrets\n",
		"docs/notes.txt":     "notes\n",
	})

	result, err = r.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if !result.HadChanges || result.ToSHA != newSHA {
		t.Fatalf("Pull() = %+v, want change to %s", result, newSHA)
	}
	sort.Strings(result.ChangedFiles)
	if len(result.ChangedFiles) != 2 || result.ChangedFiles[0] != "docs/notes.txt" || result.ChangedFiles[1] != "rules/secrets.yaml" {
		t.Errorf("ChangedFiles = %v", result.ChangedFiles)
	}

	m := r.Metrics()
	if m.SuccessfulPulls != 2 || m.LastCommitSHA != newSHA {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestRepository_History(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("second", map[string]string{"rules/a.yaml": "id: a\n"})
	src.commit("third", map[string]string{"rules/b.yaml": "id: b\n"})
	r := cloned(t, src)

	history, err := r.History(2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History(2) returned %d commits", len(history))
	}
	if history[0].Message != "third" || history[1].Message != "second" {
		t.Errorf("History() = %s, %s", history[0].Message, history[1].Message)
	}
}

func TestRepository_IsRuleChange(t *testing.T) {
	r, _ := NewRepository(config.GitConfig{Repository: "x", Branch: "main", Path: "rules"})
	tests := map[string]bool{
		"rules/a.yaml":       true,
		"rules/nested/b.yml": true,
		"rules/README.md":    false,
		"rulesets/a.yaml":    false,
		"a.yaml":             false,
		"rules/.hidden.yaml": false,
	}
	for path, want := range tests {
		if got := r.IsRuleChange(path); got != want {
			t.Errorf("IsRuleChange(%q) = %v, want %v", path, got, want)
		}
	}

	root, _ := NewRepository(config.GitConfig{Repository: "x", Branch: "main", Path: "."})
	if !root.IsRuleChange("a.yaml") {
		t.Error("IsRuleChange(a.yaml) at repository root = false")
	}
}

func sourceConfigNoClone() config.GitConfig {
	return config.GitConfig{Repository: "unused", Branch: "main"}
}
