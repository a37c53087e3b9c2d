package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-toolrun")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-toolrun" {
			t.Errorf("expected path /tmp/test-toolrun, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-toolrun")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"WorkspacePath", dir.WorkspacePath(), "/tmp/test-toolrun/workspace"},
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-toolrun/config.yaml"},
		{"RunsDir", dir.RunsDir(), "/tmp/test-toolrun/runs"},
		{"RunPath", dir.RunPath("abc"), "/tmp/test-toolrun/runs/abc.jsonl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "toolrun-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	for _, sub := range []string{dir.WorkspacePath(), dir.RunsDir()} {
		if _, err := os.Stat(sub); os.IsNotExist(err) {
			t.Errorf("%s should exist after EnsureExists", sub)
		}
	}
}

func TestDir_ConfigExists(t *testing.T) {
	dir, _ := New(t.TempDir())

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("limits: {}\n"), 0o644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}
