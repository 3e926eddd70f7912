// Package sqlitepath locates the SQLite journal of a durable blackboard for
// commands that inspect it offline.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/dotdir"
)

// ResolveSQLitePath returns override when set, otherwise the first existing
// journal among the well-known locations.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.New("could not find blackboard SQLite journal; pass --sqlite")
}

func sqliteCandidates() []string {
	candidates := []string{
		blackboard.DefaultSQLitePath,
		filepath.Join(dotdir.DirName, blackboard.DefaultSQLitePath),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, dotdir.DirName, blackboard.DefaultSQLitePath))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "blackboard", blackboard.DefaultSQLitePath))
	}

	return candidates
}
