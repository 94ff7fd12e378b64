package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"curator/internal/textutil"
)

// RunDir holds every item directory and cover of one pipeline run.
type RunDir struct {
	path   string
	items  string
	covers string

	once sync.Once
	err  error
}

// Path returns the run directory.
func (d *RunDir) Path() string { return d.path }

// ItemDir creates a uniquely named directory for one item.
func (d *RunDir) ItemDir(id string) (*Dir, error) {
	path, err := os.MkdirTemp(d.items, textutil.SanitizeToken(id)+"-")
	if err != nil {
		return nil, fmt.Errorf("create item dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// CoverPath returns where the cover for id should live.
func (d *RunDir) CoverPath(id, ext string) string {
	return filepath.Join(d.covers, textutil.SanitizeToken(id)+ext)
}

// Release removes the run directory and everything in it.
func (d *RunDir) Release() error {
	d.once.Do(func() {
		d.err = os.RemoveAll(d.path)
	})
	return d.err
}

// Dir is one item's exclusively owned asset directory.
type Dir struct {
	path string
	once sync.Once
	err  error
}

// Path returns the directory.
func (d *Dir) Path() string { return d.path }

// Release removes the directory tree.
func (d *Dir) Release() error {
	d.once.Do(func() {
		d.err = os.RemoveAll(d.path)
	})
	return d.err
}
