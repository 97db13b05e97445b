package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/query"
)

// ListFilter narrows ListRoutes. Zero values mean "no filter".
type ListFilter struct {
	ID     *int64
	Grade  *int
	BogMax *int
	Search string
}

const routeColumns = `id, name, summary, description, terrain, public_transport, start, distance, time, grade, bog`

// ListRoutes returns routes matching the filter, without tags.
func (db *DB) ListRoutes(f ListFilter) ([]models.Route, error) {
	q := `SELECT ` + routeColumns + ` FROM routes WHERE 1=1`
	var params []any

	if f.ID != nil {
		q += ` AND id = ?`
		params = append(params, *f.ID)
	}
	if f.Grade != nil {
		q += ` AND grade = ?`
		params = append(params, *f.Grade)
	}
	if f.BogMax != nil {
		q += ` AND bog <= ?`
		params = append(params, *f.BogMax)
	}
	if f.Search != "" {
		q += ` AND (name LIKE ? COLLATE NOCASE OR summary LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE)`
		like := "%" + f.Search + "%"
		params = append(params, like, like, like)
	}
	q += ` ORDER BY name ASC`

	rows, err := db.conn.Query(q, params...)
	if err != nil {
		return nil, fmt.Errorf("store: list routes: %w", err)
	}
	defer rows.Close()

	var out []models.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRoute fetches a single route by id.
func (db *DB) GetRoute(id int64) (*models.Route, error) {
	row := db.conn.QueryRow(`SELECT `+routeColumns+` FROM routes WHERE id = ?`, id)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get route: %w", err)
	}
	return &r, nil
}

// InsertRoute inserts a seeded route, deduplicating on the normalized name.
// Returns the route id whether inserted or already present.
func (db *DB) InsertRoute(r models.Route) (int64, error) {
	normalized := query.NormText(r.Name)
	_, err := db.conn.Exec(`
		INSERT INTO routes (name, normalized_name, summary, description, terrain, public_transport, start, distance, time, grade, bog)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_name) DO UPDATE SET
			summary          = excluded.summary,
			description      = excluded.description,
			terrain          = excluded.terrain,
			public_transport = excluded.public_transport,
			start            = excluded.start,
			distance         = excluded.distance,
			time             = excluded.time,
			grade            = excluded.grade,
			bog              = excluded.bog
	`, r.Name, normalized, r.Summary, r.Description, r.Terrain, r.PublicTransport, r.Start,
		r.Distance, r.Time, r.Grade, r.Bog)
	if err != nil {
		return 0, fmt.Errorf("store: insert route: %w", err)
	}
	// LastInsertId is unreliable on upsert conflicts; read the id back.
	var id int64
	if err := db.conn.QueryRow(`SELECT id FROM routes WHERE normalized_name = ?`, normalized).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: resolve seeded id: %w", err)
	}
	return id, nil
}

// ReplaceTags replaces (never accumulates) the tag set for a route.
// Tags outside the ontology are silently dropped.
func (db *DB) ReplaceTags(routeID int64, tags []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM route_tags WHERE route_id = ?`, routeID); err != nil {
		return fmt.Errorf("store: clear tags: %w", err)
	}
	for _, t := range models.FilterAllowed(tags) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO route_tags (route_id, tag) VALUES (?, ?)`, routeID, t); err != nil {
			return fmt.Errorf("store: insert tag: %w", err)
		}
	}
	return tx.Commit()
}

// TagCounts returns every tag with its usage count, most used first.
func (db *DB) TagCounts() ([]models.TagCount, error) {
	rows, err := db.conn.Query(`
		SELECT tag, COUNT(*) AS n
		FROM route_tags
		GROUP BY tag
		ORDER BY n DESC, tag ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: tag counts: %w", err)
	}
	defer rows.Close()

	var out []models.TagCount
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// NamePool returns every (id, name) pair, for name-resolution pools.
func (db *DB) NamePool() ([]RouteName, error) {
	rows, err := db.conn.Query(`SELECT id, name FROM routes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: name pool: %w", err)
	}
	defer rows.Close()

	var out []RouteName
	for rows.Next() {
		var rn RouteName
		if err := rows.Scan(&rn.ID, &rn.Name); err != nil {
			return nil, err
		}
		out = append(out, rn)
	}
	return out, rows.Err()
}

type routeScanner interface {
	Scan(dest ...any) error
}

func scanRoute(s routeScanner) (models.Route, error) {
	var r models.Route
	var summary, description, terrain, transport, start sql.NullString
	var distance, hours sql.NullFloat64
	var grade, bog sql.NullInt64
	if err := s.Scan(&r.ID, &r.Name, &summary, &description, &terrain, &transport, &start,
		&distance, &hours, &grade, &bog); err != nil {
		return models.Route{}, err
	}
	r.Summary = summary.String
	r.Description = description.String
	r.Terrain = terrain.String
	r.PublicTransport = transport.String
	r.Start = start.String
	if distance.Valid {
		r.Distance = &distance.Float64
	}
	if hours.Valid {
		r.Time = &hours.Float64
	}
	if grade.Valid {
		g := int(grade.Int64)
		r.Grade = &g
	}
	if bog.Valid {
		b := int(bog.Int64)
		r.Bog = &b
	}
	return r, nil
}
