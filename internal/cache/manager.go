package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager places cache directories, rule files and lock files under a base
// directory, normally the working directory.
type Manager struct {
	baseDir string
}

// NewManager creates a manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("cache base directory is empty")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve cache base directory: %w", err)
	}
	return &Manager{baseDir: abs}, nil
}

// DirPath returns where the cache directory for key lives.
func (m *Manager) DirPath(key Key) string {
	return filepath.Join(m.baseDir, key.DirName())
}

// RulesPath returns where the rule file for key is written.
func (m *Manager) RulesPath(key Key) string {
	return filepath.Join(m.baseDir, key.RulesName())
}

// LockPath returns the lock file path for key.
func (m *Manager) LockPath(key Key) string {
	return filepath.Join(m.baseDir, key.LockName())
}

// Exists reports whether the cache directory for key is present.
func (m *Manager) Exists(key Key) (bool, error) {
	return dirExists(m.DirPath(key))
}

// RulesExist reports whether the rule file for key is present.
func (m *Manager) RulesExist(key Key) (bool, error) {
	info, err := os.Stat(m.RulesPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat rule file: %w", err)
	}
	return !info.IsDir(), nil
}

// Prepare wipes any existing cache directory for key and creates an empty one.
// Callers must have confirmed the overwrite first.
func (m *Manager) Prepare(ctx context.Context, key Key) (Dir, error) {
	if err := ctx.Err(); err != nil {
		return Dir{}, err
	}

	path := m.DirPath(key)
	if err := os.RemoveAll(path); err != nil {
		return Dir{}, fmt.Errorf("wipe cache directory %q: %w", path, err)
	}
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Dir{}, fmt.Errorf("create cache base directory: %w", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return Dir{}, fmt.Errorf("create cache directory %q: %w", path, err)
	}
	return Dir{Key: key, Path: path}, nil
}

// RemoveRules deletes a previous rule file. A missing file is not an error.
func (m *Manager) RemoveRules(key Key) error {
	if err := os.Remove(m.RulesPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove rule file: %w", err)
	}
	return nil
}

// OpenLog opens the training log for appending, creating it if needed.
func (d Dir) OpenLog() (*os.File, error) {
	f, err := os.OpenFile(d.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open training log: %w", err)
	}
	return f, nil
}

// Remove deletes scratch artifacts. Missing files are skipped.
func (d Dir) Remove(artifacts ...Artifact) error {
	for _, a := range artifacts {
		if err := os.RemoveAll(d.File(a)); err != nil {
			return fmt.Errorf("remove %s: %w", d.Key.FileName(a), err)
		}
	}
	return nil
}

// FileSize returns the size of path in bytes, or -1 when it cannot be
// statted. The rule file and a prebuilt language model live outside the
// cache directory, so sizes are taken by path.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat cache directory %q: %w", path, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("cache path %q is not a directory", path)
	}
	return true, nil
}
