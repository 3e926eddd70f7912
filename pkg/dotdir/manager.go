// Package dotdir resolves the .blackboard/ directory that holds config.toml,
// the policy rules file and the default durable journal.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the blackboard directory.
	DirName = ".blackboard"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .blackboard/ directory.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. Local ./.blackboard/ dir
//  3. Home ~/.blackboard/ dir
//  4. If none found, the empty string
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating blackboard directory %s: %w", overrideDir, err)
		}
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, DirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", nil
		}
	}

	return filepath.Abs(dir)
}

// Path joins name onto the resolved directory. When no directory resolves,
// name is returned unchanged so it lands in the working directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return name, nil
	}
	return filepath.Join(dir, name), nil
}

// localDirExists checks whether a .blackboard/ directory exists in the
// current working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, DirName))
	return err == nil && info.IsDir()
}
