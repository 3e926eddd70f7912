// Package sqlite provides a SQLite-backed journal for the durable
// blackboard flavor.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/blackboard/pkg/storage/sqljournal"
)

// NewJournal opens (or creates) the database at dbPath. The dbPath can be a
// file path or ":memory:" for an in-memory database.
func NewJournal(ctx context.Context, dbPath string) (*sqljournal.Journal, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Chain writes are already serialized by the store; a single connection
	// avoids SQLITE_BUSY between pooled connections and keeps ":memory:"
	// databases from splitting into one per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	j, err := sqljournal.New(ctx, db, sqljournal.Question)
	if err != nil {
		db.Close()
		return nil, err
	}

	return j, nil
}
