package scratch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"curator/internal/logging"
)

const lockName = ".lock"

// ErrRootLocked is returned when another process holds the scratch root.
var ErrRootLocked = errors.New("scratch root is locked by another process")

// Root is an exclusively owned scratch directory.
type Root struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// ClearResult describes what Clear removed.
type ClearResult struct {
	Removed []string
	Errors  []ClearError
}

// ClearError pairs a path with its removal error.
type ClearError struct {
	Path  string
	Error error
}

// Acquire creates path if needed, locks it, and removes prior contents.
func Acquire(path string, logger *slog.Logger) (*Root, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("scratch root path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	lock := flock.New(filepath.Join(path, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock scratch root: %w", err)
	}
	if !ok {
		return nil, ErrRootLocked
	}

	root := &Root{path: path, lock: lock, logger: logging.NewComponentLogger(logger, "scratch")}
	result := root.Clear()
	if len(result.Errors) > 0 {
		_ = lock.Unlock()
		first := result.Errors[0]
		return nil, fmt.Errorf("clear scratch root %s: %w", first.Path, first.Error)
	}
	return root, nil
}

// Path returns the root directory.
func (r *Root) Path() string { return r.path }

// Clear removes every entry under the root except the lock file.
func (r *Root) Clear() ClearResult {
	result := ClearResult{}
	entries, err := os.ReadDir(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, ClearError{Path: r.path, Error: err})
		}
		return result
	}
	for _, entry := range entries {
		if entry.Name() == lockName {
			continue
		}
		target := filepath.Join(r.path, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			result.Errors = append(result.Errors, ClearError{Path: target, Error: err})
			r.logger.Warn("failed to remove leftover scratch entry",
				logging.String("path", target),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scratch_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, target)
	}
	if len(result.Removed) > 0 {
		r.logger.Info("cleared scratch root",
			logging.String("path", r.path),
			logging.Int("removed", len(result.Removed)),
			logging.String(logging.FieldEventType, "scratch_cleanup"),
		)
	}
	return result
}

// List returns the names of entries under the root, excluding the lock.
func (r *Root) List() ([]string, error) {
	entries, err := os.ReadDir(r.path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == lockName {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// NewRun creates a run directory. An empty runID gets a random one.
func (r *Root) NewRun(runID string) (*RunDir, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	path := filepath.Join(r.path, "run-"+runID)
	run := &RunDir{
		path:   path,
		items:  filepath.Join(path, "items"),
		covers: filepath.Join(path, "covers"),
	}
	for _, dir := range []string{run.items, run.covers} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(path)
			return nil, fmt.Errorf("create run dir: %w", err)
		}
	}
	return run, nil
}

// Close releases the process lock. The directory itself is left in place.
func (r *Root) Close() error {
	if r == nil || r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}
