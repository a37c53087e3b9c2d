package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the toolrun home directory.
	DefaultDirName = ".toolrun"

	// WorkspaceDirName is the default root that file tools are confined to.
	WorkspaceDirName = "workspace"

	// RunsDirName holds saved batch and chain results.
	RunsDirName = "runs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the toolrun home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.toolrun).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// WorkspacePath returns the default tool root.
func (d *Dir) WorkspacePath() string {
	return filepath.Join(d.path, WorkspaceDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// RunsDir returns the directory for saved results.
func (d *Dir) RunsDir() string {
	return filepath.Join(d.path, RunsDirName)
}

// RunPath returns the JSONL file for a saved run.
func (d *Dir) RunPath(runID string) string {
	return filepath.Join(d.RunsDir(), runID+".jsonl")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.WorkspacePath(), d.RunsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
