// Package dotdir resolves the .chatstream/ directory that holds config.toml,
// the default SQLite conversation store and the chat command's active
// conversation.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirName = ".chatstream"

// Manager resolves and creates the .chatstream/ directory.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the directory to use, creating it when
// missing. An override wins, then ./.chatstream/ if present, then
// ~/.chatstream/.
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// File returns the path of name inside the resolved directory.
func (m *Manager) File(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}
