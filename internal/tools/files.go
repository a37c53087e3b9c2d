package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// skipDirs are never descended into by searches.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	".venv":        true,
}

// errLimit stops a walk once enough results were collected.
var errLimit = errors.New("result limit reached")

// Files implements the filesystem tool kinds inside a sandbox root.
type Files struct {
	sandbox      sandbox
	maxFileBytes int64
	maxResults   int
}

// NewFiles creates filesystem tools rooted at root. A zero maxFileSizeMB or
// maxResults disables that limit.
func NewFiles(root string, maxFileSizeMB, maxResults int) (*Files, error) {
	sb, err := newSandbox(root)
	if err != nil {
		return nil, err
	}
	return &Files{
		sandbox:      sb,
		maxFileBytes: int64(maxFileSizeMB) << 20,
		maxResults:   maxResults,
	}, nil
}

// Root returns the absolute sandbox root.
func (f *Files) Root() string {
	return f.sandbox.root
}

// Execute runs one filesystem invocation.
func (f *Files) Execute(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	switch p := inv.Params().(type) {
	case tool.FileRead:
		return f.read(p)
	case tool.FileWrite:
		return f.write(p)
	case tool.ListDirectory:
		return f.list(p)
	case tool.FileSearch:
		return f.search(ctx, p)
	case tool.ContentSearch:
		return f.grep(ctx, p)
	default:
		return tool.Result{}, unsupported(inv)
	}
}

func (f *Files) read(p tool.FileRead) (tool.Result, error) {
	full, err := f.sandbox.resolve(p.Path)
	if err != nil {
		return tool.Result{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return tool.Result{}, toolerr.NewFileSystem(p.Path, err)
	}
	if info.IsDir() {
		return tool.Result{}, toolerr.NewFileSystem(p.Path, fmt.Errorf("%s is a directory", p.Path))
	}
	if f.maxFileBytes > 0 && info.Size() > f.maxFileBytes {
		return tool.Result{}, toolerr.NewValidation("path",
			fmt.Sprintf("file of at most %d MB", f.maxFileBytes>>20),
			fmt.Sprintf("%d bytes", info.Size()))
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return tool.Result{}, toolerr.NewFileSystem(p.Path, err)
	}
	return tool.Succeeded(string(content), map[string]any{
		"path":       f.sandbox.rel(full),
		"size_bytes": info.Size(),
	}), nil
}

func (f *Files) write(p tool.FileWrite) (tool.Result, error) {
	full, err := f.sandbox.resolve(p.Path)
	if err != nil {
		return tool.Result{}, err
	}
	if f.maxFileBytes > 0 && int64(len(p.Content)) > f.maxFileBytes {
		return tool.Result{}, toolerr.NewValidation("content",
			fmt.Sprintf("at most %d MB", f.maxFileBytes>>20),
			fmt.Sprintf("%d bytes", len(p.Content)))
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return tool.Result{}, toolerr.NewFileSystem(p.Path, err)
	}
	// A symlink may have appeared between resolve and MkdirAll.
	if err := f.sandbox.checkReal(full); err != nil {
		return tool.Result{}, toolerr.NewPermission("write "+p.Path, "path inside "+f.sandbox.root)
	}
	if err := os.WriteFile(full, []byte(p.Content), 0o644); err != nil {
		return tool.Result{}, toolerr.NewFileSystem(p.Path, err)
	}
	rel := f.sandbox.rel(full)
	return tool.Succeeded(fmt.Sprintf("wrote %d bytes to %s", len(p.Content), rel), map[string]any{
		"path":          rel,
		"bytes_written": len(p.Content),
	}), nil
}

func (f *Files) list(p tool.ListDirectory) (tool.Result, error) {
	full, err := f.sandbox.resolve(p.Path)
	if err != nil {
		return tool.Result{}, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return tool.Result{}, toolerr.NewFileSystem(p.Path, err)
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
	}
	return tool.Succeeded(b.String(), map[string]any{
		"path":    f.sandbox.rel(full),
		"entries": len(entries),
	}), nil
}

// search finds files whose base name matches the pattern as a glob, or
// contains it when the pattern has no glob metacharacters.
func (f *Files) search(ctx context.Context, p tool.FileSearch) (tool.Result, error) {
	start, err := f.sandbox.resolve(p.Directory)
	if err != nil {
		return tool.Result{}, err
	}
	if _, err := filepath.Match(p.Pattern, ""); err != nil {
		return tool.Result{}, toolerr.NewValidation("pattern", "valid glob", p.Pattern)
	}
	glob := strings.ContainsAny(p.Pattern, "*?[")

	var matches []string
	truncated, err := f.walk(ctx, start, func(path string, d fs.DirEntry) error {
		name := d.Name()
		var hit bool
		if glob {
			hit, _ = filepath.Match(p.Pattern, name)
		} else {
			hit = strings.Contains(name, p.Pattern)
		}
		if hit {
			matches = append(matches, f.sandbox.rel(path))
			if f.maxResults > 0 && len(matches) >= f.maxResults {
				return errLimit
			}
		}
		return nil
	})
	if err != nil {
		return tool.Result{}, toolerr.NewSearch(p.Pattern, err)
	}

	meta := map[string]any{"matches": len(matches), "truncated": truncated}
	if len(matches) == 0 {
		return tool.Failed("", fmt.Sprintf("no files matching %q", p.Pattern), meta), nil
	}
	return tool.Succeeded(strings.Join(matches, "\n"), meta), nil
}

// grep reports every line containing the pattern as path:line: text.
// Binary and oversized files are skipped.
func (f *Files) grep(ctx context.Context, p tool.ContentSearch) (tool.Result, error) {
	start, err := f.sandbox.resolve(p.Directory)
	if err != nil {
		return tool.Result{}, err
	}

	var lines []string
	files := 0
	truncated, err := f.walk(ctx, start, func(path string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil || (f.maxFileBytes > 0 && info.Size() > f.maxFileBytes) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil || looksBinary(content) {
			return nil
		}
		found := false
		sc := bufio.NewScanner(bytes.NewReader(content))
		sc.Buffer(make([]byte, 64<<10), 1<<20)
		for n := 1; sc.Scan(); n++ {
			if !strings.Contains(sc.Text(), p.Pattern) {
				continue
			}
			found = true
			lines = append(lines, fmt.Sprintf("%s:%d: %s", f.sandbox.rel(path), n, strings.TrimSpace(sc.Text())))
			if f.maxResults > 0 && len(lines) >= f.maxResults {
				files++
				return errLimit
			}
		}
		if found {
			files++
		}
		return nil
	})
	if err != nil {
		return tool.Result{}, toolerr.NewSearch(p.Pattern, err)
	}

	meta := map[string]any{"matches": len(lines), "files": files, "truncated": truncated}
	if len(lines) == 0 {
		return tool.Failed("", fmt.Sprintf("no lines containing %q", p.Pattern), meta), nil
	}
	return tool.Succeeded(strings.Join(lines, "\n"), meta), nil
}

// walk visits every regular file under start. visit may return errLimit to
// stop early, in which case truncated is true.
func (f *Files) walk(ctx context.Context, start string, visit func(string, fs.DirEntry) error) (truncated bool, err error) {
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == start {
				return err
			}
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if path != start && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return visit(path, d)
	})
	if errors.Is(err, errLimit) {
		return true, nil
	}
	return false, err
}

func looksBinary(content []byte) bool {
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.IndexByte(head, 0) >= 0
}
