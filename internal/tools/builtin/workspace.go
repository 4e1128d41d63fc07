package builtin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathOutsideWorkspace = errors.New("path is outside workspace")
	errPathRequired         = errors.New("path is required")
)

// workspace confines tool file access to a directory tree. root is absolute
// with symlinks resolved.
type workspace struct {
	root string
}

// openWorkspace resolves dir, or the working directory when dir is blank.
func openWorkspace(dir string) (workspace, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return workspace{}, fmt.Errorf("workspace: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return workspace{}, fmt.Errorf("workspace %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return workspace{}, fmt.Errorf("workspace %s: %w", abs, err)
	}
	return workspace{root: resolved}, nil
}

// existing resolves p, which must already exist, inside the workspace.
func (w workspace) existing(p string) (string, error) {
	target, err := w.join(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", p, err)
	}
	return w.confine(p, resolved)
}

// writable resolves p for creation. Missing trailing components are allowed;
// the nearest existing ancestor is resolved through symlinks.
func (w workspace) writable(p string) (string, error) {
	target, err := w.join(p)
	if err != nil {
		return "", err
	}

	base, rest := target, ""
	for {
		resolved, err := filepath.EvalSymlinks(base)
		if err == nil {
			return w.confine(p, filepath.Join(resolved, rest))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolve path %s: %w", p, err)
		}
		parent := filepath.Dir(base)
		if parent == base {
			return "", fmt.Errorf("resolve path %s: %w", p, err)
		}
		rest = filepath.Join(filepath.Base(base), rest)
		base = parent
	}
}

func (w workspace) join(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errPathRequired
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	return filepath.Clean(p), nil
}

func (w workspace) confine(input, resolved string) (string, error) {
	rel, err := filepath.Rel(w.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s (workspace: %s)", ErrPathOutsideWorkspace, input, w.root)
	}
	return resolved, nil
}
