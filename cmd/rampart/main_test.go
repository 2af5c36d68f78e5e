package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"mercator-hq/rampart/pkg/audit"
	"mercator-hq/rampart/pkg/cli"
	"mercator-hq/rampart/pkg/policy/engine"
	"mercator-hq/rampart/pkg/policy/merger"
)

// run executes the root command with args and returns what it printed on
// stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rampart.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		rules    string
		wantErr  bool
		wantText string
	}{
		{name: "valid set", rules: "testdata/rules", wantText: "2 rule documents valid"},
		{name: "cyclic delegation", rules: "testdata/cyclic", wantErr: true, wantText: "DelegationCycle"},
		{name: "missing directory", rules: "testdata/nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "validate", "--rules", tt.rules)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate error = %v, wantErr %v; output:\n%s", err, tt.wantErr, out)
			}
			if err != nil && cli.ExitCode(err) != cli.ExitFailure {
				t.Errorf("ExitCode = %d, want %d", cli.ExitCode(err), cli.ExitFailure)
			}
			if !strings.Contains(out, tt.wantText) {
				t.Errorf("output missing %q:\n%s", tt.wantText, out)
			}
		})
	}
}

func TestValidateJSON(t *testing.T) {
	out, err := run(t, "validate", "--rules", "testdata/cyclic", "--format", "json")
	if err == nil {
		t.Fatal("validate succeeded on a cyclic set")
	}
	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Valid || len(report.Errors) == 0 {
		t.Errorf("report = %+v, want invalid with errors", report)
	}
}

func TestResolve(t *testing.T) {
	out, err := run(t, "resolve", "app/page.ts", "--rules", "testdata/rules", "--format", "json")
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	var policy merger.EffectivePolicy
	if err := json.Unmarshal([]byte(out), &policy); err != nil {
		t.Fatalf("decode policy: %v\n%s", err, out)
	}

	want := map[string]string{
		"input-validation": "baseline",
		"transport":        "baseline",
		"secrets":          "web-specific",
		"provenance":       "web-specific",
	}
	if !reflect.DeepEqual(policy.Authorities, want) {
		t.Errorf("Authorities = %v, want %v", policy.Authorities, want)
	}
}

func TestResolveText(t *testing.T) {
	out, err := run(t, "resolve", "src/main.go", "--rules", "testdata/rules")
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if !strings.Contains(out, "Identifier: src/main.go") || strings.Contains(out, "web-specific") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestResolveInvalidRules(t *testing.T) {
	if _, err := run(t, "resolve", "src/main.go", "--rules", "testdata/cyclic"); err == nil {
		t.Error("resolve succeeded against an invalid rule set")
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		exit     int
		wantText string
	}{
		{
			name:     "allow",
			args:     []string{"src/main.go", "-f", "usesRawEval=false", "-f", "tls=true"},
			exit:     cli.ExitOK,
			wantText: "src/main.go: allow",
		},
		{
			name:     "unverified requirement annotates",
			args:     []string{"src/main.go", "-f", "usesRawEval=false"},
			exit:     cli.ExitOK,
			wantText: "allow-with-annotations",
		},
		{
			name:     "fatal prohibition blocks",
			args:     []string{"src/main.go", "-f", "usesRawEval=true", "-f", "tls=true"},
			exit:     cli.ExitBlocked,
			wantText: "Dynamic code evaluation is forbidden",
		},
		{
			name: "bad feature flag",
			args: []string{"src/main.go", "-f", "=oops"},
			exit: cli.ExitConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"evaluate", "--rules", "testdata/rules"}, tt.args...)
			out, err := run(t, args...)
			if got := cli.ExitCode(err); got != tt.exit {
				t.Fatalf("ExitCode = %d, want %d (err %v)", got, tt.exit, err)
			}
			if !strings.Contains(out, tt.wantText) {
				t.Errorf("output missing %q:\n%s", tt.wantText, out)
			}
		})
	}
}

func TestEvaluateDegradedBlocks(t *testing.T) {
	out, err := run(t, "evaluate", "src/main.go", "--rules", "testdata/cyclic", "--format", "json")
	if !errors.Is(err, cli.ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	var res engine.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if !res.Degraded {
		t.Error("result not marked degraded")
	}
}

func TestParseFeatures(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "features.yaml")
	if err := os.WriteFile(file, []byte("tls: true\nregion: eu\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: map[string]any{}},
		{
			name:  "typed scalars",
			pairs: []string{"tls=true", "retries=3", "name=web"},
			want:  map[string]any{"tls": true, "retries": 3, "name": "web"},
		},
		{
			name:  "list value",
			pairs: []string{"regions=[eu, us]"},
			want:  map[string]any{"regions": []any{"eu", "us"}},
		},
		{
			name:  "empty value stays a string",
			pairs: []string{"owner="},
			want:  map[string]any{"owner": ""},
		},
		{
			name:  "flags override file",
			file:  file,
			pairs: []string{"tls=false"},
			want:  map[string]any{"tls": false, "region": "eu"},
		},
		{name: "missing equals", pairs: []string{"tls"}, wantErr: true},
		{name: "missing file", file: filepath.Join(dir, "none.yaml"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFeatures(tt.file, tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFeatures() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseFeatures() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAuditRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	cfg := writeConfig(t, `
audit:
  enabled: true
  backend: sqlite
  sqlite:
    path: `+dbPath+`
`)

	if _, err := run(t, "evaluate", "src/main.go", "-c", cfg, "-r", "testdata/rules",
		"-f", "usesRawEval=true", "--record"); !errors.Is(err, cli.ErrBlocked) {
		t.Fatalf("evaluate err = %v, want ErrBlocked", err)
	}
	if _, err := run(t, "evaluate", "app/page.ts", "-c", cfg, "-r", "testdata/rules",
		"-f", "usesRawEval=false", "-f", "tls=true", "--record"); err != nil {
		t.Fatalf("evaluate err = %v", err)
	}

	out, err := run(t, "audit", "query", "-c", cfg, "--format", "json")
	if err != nil {
		t.Fatalf("audit query err = %v", err)
	}
	var records []*audit.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode records: %v\n%s", err, out)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	out, err = run(t, "audit", "query", "-c", cfg, "--verdict", "block")
	if err != nil {
		t.Fatalf("audit query --verdict err = %v", err)
	}
	if !strings.Contains(out, "src/main.go") || strings.Contains(out, "app/page.ts") {
		t.Errorf("filtered query output:\n%s", out)
	}

	exportPath := filepath.Join(t.TempDir(), "audit.csv")
	if _, err := run(t, "audit", "export", "-c", cfg, "--export-format", "csv", "--output", exportPath); err != nil {
		t.Fatalf("audit export err = %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "baseline") {
		t.Errorf("csv export missing rule id:\n%s", data)
	}

	out, err = run(t, "audit", "prune", "-c", cfg, "--days", "1", "--format", "json")
	if err != nil {
		t.Fatalf("audit prune err = %v", err)
	}
	var pruned pruneResult
	if err := json.Unmarshal([]byte(out), &pruned); err != nil {
		t.Fatalf("decode prune result: %v\n%s", err, out)
	}
	if pruned.Deleted != 0 || pruned.RetentionDays != 1 {
		t.Errorf("prune result = %+v, want nothing deleted", pruned)
	}
}

func TestAuditQueryInvalid(t *testing.T) {
	cfg := writeConfig(t, "audit:\n  backend: memory\n")

	tests := []struct {
		name string
		args []string
	}{
		{name: "bad sort order", args: []string{"audit", "query", "-c", cfg, "--order", "sideways"}},
		{name: "negative limit", args: []string{"audit", "query", "-c", cfg, "--limit", "-1"}},
		{name: "bad export format", args: []string{"audit", "export", "-c", cfg, "--export-format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if cli.ExitCode(err) != cli.ExitConfig {
				t.Errorf("err = %v, want a config error", err)
			}
		})
	}
}

func TestServeDryRun(t *testing.T) {
	out, err := run(t, "serve", "--dry-run", "--rules", "testdata/rules")
	if err != nil {
		t.Fatalf("serve --dry-run err = %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("output = %q", out)
	}

	cfg := writeConfig(t, "rules:\n  mode: ftp\n")
	if _, err := run(t, "serve", "--dry-run", "-c", cfg); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("err = %v, want a config error", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version err = %v", err)
	}
	if !strings.Contains(out, "Rampart "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := run(t, "resolve", "src/main.go", "--rules", "testdata/rules", "--format", "xml")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("err = %v, want a config error", err)
	}
}
