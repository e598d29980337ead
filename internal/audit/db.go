// Package audit persists the locator's HypoAudit trail and final
// Close-out report across runs, supplementing spec.md §3's
// description of HypoAudit as "used both for logging and as a
// rollback target" with durable storage so a run's full stage/
// iteration history can be inspected after the fact. This is an
// ambient observability concern, not a new core feature; the core
// packages never import this one.
package audit

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sqlite connection for the audit store, grounded on the
// teacher's internal/db.DB pattern (embedding *sql.DB, applying
// pragmas, exposing MigrateUp/etc via migrate.go).
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the sqlite audit database at
// path and applies the performance PRAGMAs the teacher's db.go uses.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	db := &DB{sqlDB}
	if err := db.applyPragmas(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}
	return nil
}
