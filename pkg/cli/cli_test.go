package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

type textOnly struct{ name string }

func (v textOnly) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "name: %s\n", v.name)
	return err
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    string
		wantErr bool
	}{
		{format: "", want: "*cli.TextFormatter"},
		{format: FormatText, want: "*cli.TextFormatter"},
		{format: FormatJSON, want: "*cli.JSONFormatter"},
		{format: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFormatter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				var ce *ConfigError
				if !errors.As(err, &ce) || ce.Field != "format" {
					t.Errorf("error = %v, want ConfigError on format", err)
				}
				return
			}
			if got := fmt.Sprintf("%T", f); got != tt.want {
				t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{name: "plain value", data: "test message", want: "test message\n"},
		{name: "text writer", data: textOnly{name: "baseline"}, want: "name: baseline\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&TextFormatter{}).FormatTo(&buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("FormatTo() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"verdict": "allow", "violations": 0}
	if err := (&JSONFormatter{Indent: true}).FormatTo(&buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["verdict"] != "allow" {
		t.Errorf("verdict = %v", got["verdict"])
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n  ")) {
		t.Error("output is not indented")
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	ce := NewCommandError("validate", cause)
	if ce.Error() != "command validate failed: boom" {
		t.Errorf("CommandError.Error() = %q", ce.Error())
	}
	if !errors.Is(ce, cause) {
		t.Error("CommandError does not unwrap to its cause")
	}

	if got := NewConfigError("rules.path", "missing").Error(); got != "config error in rules.path: missing" {
		t.Errorf("ConfigError.Error() = %q", got)
	}
	if got := NewConfigError("", "unreadable").Error(); got != "config error: unreadable" {
		t.Errorf("ConfigError.Error() = %q", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "generic", err: errors.New("x"), want: ExitFailure},
		{name: "config", err: NewConfigError("f", "m"), want: ExitConfig},
		{name: "wrapped config", err: fmt.Errorf("load: %w", NewConfigError("f", "m")), want: ExitConfig},
		{name: "blocked", err: NewCommandError("evaluate", ErrBlocked), want: ExitBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSignalContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before any signal")
	case <-time.After(10 * time.Millisecond):
	}

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}
