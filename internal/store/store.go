// Package store provides SQLite-backed storage for routes, the tag relation,
// the coordinate cache, and optional FTS5 full-text search.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/munrobagger/cairn/internal/models"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS routes (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	normalized_name  TEXT NOT NULL UNIQUE,
	summary          TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	terrain          TEXT NOT NULL DEFAULT '',
	public_transport TEXT NOT NULL DEFAULT '',
	start            TEXT NOT NULL DEFAULT '',
	distance         REAL,
	time             REAL,
	grade            INTEGER,
	bog              INTEGER
);

CREATE TABLE IF NOT EXISTS route_tags (
	route_id INTEGER NOT NULL,
	tag      TEXT NOT NULL,
	PRIMARY KEY (route_id, tag),
	FOREIGN KEY (route_id) REFERENCES routes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_route_tags_tag ON route_tags(tag);

CREATE TABLE IF NOT EXISTS route_coords (
	name       TEXT PRIMARY KEY,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	source     TEXT,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_route_coords_latlon ON route_coords(lat, lon);
`

// RouteIndex is the storage interface the search and geo layers depend on.
// Consumers should depend on this rather than the concrete *DB type to
// facilitate testing with mocks.
type RouteIndex interface {
	TextIndexAvailable() bool
	HasRouteMetrics() bool
	SearchMatch(expr string, f Filters, limit int) ([]RouteHit, error)
	SearchFuzzy(patterns []string, f Filters, limit int) ([]RouteHit, error)
	SearchTags(f Filters, limit int) ([]RouteHit, error)
	TagsForRoutes(ids []int64) (map[int64][]string, error)
	AllCoords() ([]models.CoordEntry, error)
	NamePool() ([]RouteName, error)
	GetRoute(id int64) (*models.Route, error)
}

// Verify *DB satisfies RouteIndex at compile time.
var _ RouteIndex = (*DB)(nil)

// DB wraps a sql.DB with route-index operations.
type DB struct {
	conn       *sql.DB
	hasMetrics bool
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initTextIndex(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply text index schema: %w", err)
	}
	db := &DB{conn: conn}
	db.hasMetrics, err = probeRouteMetrics(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: probe columns: %w", err)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// HasRouteMetrics reports whether the routes table carries distance/time
// columns. Databases seeded by older batch jobs may lack them; numeric
// route filters degrade to no-ops in that case rather than erroring.
func (db *DB) HasRouteMetrics() bool {
	return db.hasMetrics
}

// probeRouteMetrics inspects the live schema for the distance and time
// columns rather than assuming the seeding job created them.
func probeRouteMetrics(conn *sql.DB) (bool, error) {
	rows, err := conn.Query(`PRAGMA table_info(routes)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		cols[name] = true
	}
	return cols["distance"] && cols["time"], rows.Err()
}
