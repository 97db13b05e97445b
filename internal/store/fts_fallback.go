//go:build !sqlite_fts5

package store

import "database/sql"

func initTextIndex(_ *sql.DB) error {
	// FTS5 not compiled in; the retrieval cascade skips the text-match pass
	// and relies on the LIKE fallback pass.
	return nil
}

// TextIndexAvailable reports that no text index is present in this build.
func (db *DB) TextIndexAvailable() bool { return false }

func (db *DB) matchIDs(_ string) ([]int64, error) { return nil, nil }

// UpsertTextIndex is a no-op without FTS5; fuzzy search reads the routes
// table directly.
func (db *DB) UpsertTextIndex(_ int64, _, _, _, _ string) error { return nil }

// OptimizeTextIndex is a no-op without FTS5.
func (db *DB) OptimizeTextIndex() error { return nil }
