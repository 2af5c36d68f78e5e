package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitialize(t *testing.T) {
	SetConfig(nil)
	t.Cleanup(func() { SetConfig(nil) })

	path := filepath.Join(t.TempDir(), "rampart.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  path: ./first\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := GetConfig().Rules.Path; got != "./first" {
		t.Errorf("Rules.Path = %q, want ./first", got)
	}

	// A second Initialize keeps the first configuration.
	if err := os.WriteFile(path, []byte("rules:\n  path: ./second\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := GetConfig().Rules.Path; got != "./first" {
		t.Errorf("Rules.Path = %q after second Initialize, want ./first", got)
	}

	if err := Reload(path); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := MustGetConfig().Rules.Path; got != "./second" {
		t.Errorf("Rules.Path = %q after Reload, want ./second", got)
	}
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	cfg := Default()
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	if err := Reload(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
	if GetConfig() != cfg {
		t.Error("configuration replaced after failed reload")
	}
}

func TestMustGetConfigPanics(t *testing.T) {
	SetConfig(nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustGetConfig()
}
