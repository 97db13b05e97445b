//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
)

// Contentful FTS5 table keyed by route id. Rebuilt row-by-row whenever the
// batch tagger refreshes a route's keywords; contentful so a plain DELETE
// removes the old document when a route is re-indexed.
func initTextIndex(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS route_fts USING fts5(
			name, summary, description, keywords
		);
	`)
	return err
}

// TextIndexAvailable reports that the FTS5 text index is compiled in.
func (db *DB) TextIndexAvailable() bool { return true }

// matchIDs returns the candidate route ids for a match expression.
func (db *DB) matchIDs(expr string) ([]int64, error) {
	rows, err := db.conn.Query(`SELECT rowid FROM route_fts WHERE route_fts MATCH ?`, expr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertTextIndex replaces the text-index document for a route.
func (db *DB) UpsertTextIndex(id int64, name, summary, description, keywords string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM route_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("store: clear text index: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO route_fts(rowid, name, summary, description, keywords) VALUES (?, ?, ?, ?, ?)`,
		id, name, summary, description, keywords); err != nil {
		return fmt.Errorf("store: upsert text index: %w", err)
	}
	return tx.Commit()
}

// OptimizeTextIndex merges FTS segments after a bulk rebuild.
func (db *DB) OptimizeTextIndex() error {
	_, err := db.conn.Exec(`INSERT INTO route_fts(route_fts) VALUES ('optimize')`)
	return err
}
