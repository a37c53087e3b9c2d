package tools

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// sandbox confines paths to a root directory.
type sandbox struct {
	root string
}

func newSandbox(root string) (sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return sandbox{}, toolerr.NewInvalidConfig("tools.root_dir", err.Error())
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	info, err := os.Stat(abs)
	if err != nil {
		return sandbox{}, toolerr.NewInvalidConfig("tools.root_dir", err.Error())
	}
	if !info.IsDir() {
		return sandbox{}, toolerr.NewInvalidConfig("tools.root_dir", abs+" is not a directory")
	}
	return sandbox{root: abs}, nil
}

// resolve maps path (relative to the root, or absolute inside it) to an
// absolute path. Symlinks that lead outside the root are rejected.
func (s sandbox) resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	full := filepath.Clean(path)
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.root, full)
	}
	if !s.contains(full) {
		return "", toolerr.NewPermission("access "+path, "path inside "+s.root)
	}
	if err := s.checkReal(full); err != nil {
		return "", toolerr.NewPermission("access "+path, "path inside "+s.root)
	}
	return full, nil
}

// checkReal resolves symlinks in full and fails if the result lies outside
// the root. A path that does not exist yet is judged by its nearest
// existing ancestor, so a write cannot pass through a symlinked parent.
func (s sandbox) checkReal(full string) error {
	for p := full; ; p = filepath.Dir(p) {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			if !s.contains(real) {
				return errOutsideRoot
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if parent := filepath.Dir(p); parent == p {
			return err
		}
	}
}

var errOutsideRoot = errors.New("path resolves outside the root")

func (s sandbox) contains(full string) bool {
	rel, err := filepath.Rel(s.root, full)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// rel returns full relative to the root, for display.
func (s sandbox) rel(full string) string {
	if rel, err := filepath.Rel(s.root, full); err == nil {
		return filepath.ToSlash(rel)
	}
	return full
}
