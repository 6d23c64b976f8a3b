// Package workspace manages the per-run scratch directory holding generated
// variable files, inventories and temporary credentials. Release removes
// everything and is safe to call more than once, so callers defer it on
// every exit path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Workspace is a scoped directory for one deployment run
type Workspace struct {
	fs   afero.Fs
	dir  string
	once sync.Once
}

// New creates a fresh directory under baseDir (os.TempDir when empty)
func New(fs afero.Fs, baseDir, deploymentID string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := fs.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace base %s: %w", baseDir, err)
	}

	dir, err := afero.TempDir(fs, baseDir, "shepherd-"+deploymentID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Workspace{fs: fs, dir: dir}, nil
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Fs returns the filesystem the workspace lives on
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Path returns the absolute path of name inside the workspace
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile writes data to name inside the workspace and returns its path
func (w *Workspace) WriteFile(name string, data []byte, perm os.FileMode) (string, error) {
	path := w.Path(name)
	if err := w.fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := afero.WriteFile(w.fs, path, data, perm); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// Release removes the workspace and everything in it
func (w *Workspace) Release() error {
	var err error
	w.once.Do(func() {
		err = w.fs.RemoveAll(w.dir)
	})
	return err
}
