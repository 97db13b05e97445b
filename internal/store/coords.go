package store

import (
	"fmt"
	"time"

	"github.com/munrobagger/cairn/internal/models"
)

// AllCoords returns the full coordinate cache. The cache is small (bounded
// by the route count) so a full read is the expected access pattern.
func (db *DB) AllCoords() ([]models.CoordEntry, error) {
	rows, err := db.conn.Query(`SELECT name, lat, lon, COALESCE(source, ''), updated_at FROM route_coords`)
	if err != nil {
		return nil, fmt.Errorf("store: all coords: %w", err)
	}
	defer rows.Close()

	var out []models.CoordEntry
	for rows.Next() {
		var e models.CoordEntry
		var ts string
		if err := rows.Scan(&e.Name, &e.Lat, &e.Lon, &e.Source, &ts); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
			e.UpdatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CoordNames returns the set of names already present in the cache, so the
// builder only geocodes what is missing.
func (db *DB) CoordNames() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT name FROM route_coords`)
	if err != nil {
		return nil, fmt.Errorf("store: coord names: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out[n] = struct{}{}
	}
	return out, rows.Err()
}

// UpsertCoords writes a batch of geocoded entries in one transaction.
func (db *DB) UpsertCoords(entries []models.CoordEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO route_coords (name, lat, lon, source, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare coord insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		ts := e.UpdatedAt
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		if _, err := stmt.Exec(e.Name, e.Lat, e.Lon, e.Source, ts.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("store: insert coord: %w", err)
		}
	}
	return tx.Commit()
}
