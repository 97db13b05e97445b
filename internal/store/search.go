package store

import (
	"database/sql"
	"fmt"
)

// Rank values assigned per retrieval tier. Lower sorts earlier; location
// mode uses real distances in km, which stay well below RankFuzzy.
const (
	RankTextMatch = 0.0
	RankFuzzy     = 1000.0
	RankTagOnly   = 2000.0
)

// RouteHit is one row from a search pass, before tag enrichment.
type RouteHit struct {
	ID          int64
	Name        string
	Summary     string
	Description string
	Rank        float64
}

// RouteName pairs an id with its display name, for name-resolution pools.
type RouteName struct {
	ID   int64
	Name string
}

// SearchMatch runs the text-index pass: candidate ids from the match
// expression joined against routes, filtered, ordered by name. The text
// index is a boolean filter here, not a relevance ranking.
func (db *DB) SearchMatch(expr string, f Filters, limit int) ([]RouteHit, error) {
	ids, err := db.matchIDs(expr)
	if err != nil {
		return nil, fmt.Errorf("store: text match: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	c := f.compose(db.hasMetrics)
	idPH := placeholders(len(ids))

	q := `
		SELECT m.id, m.name, m.summary, m.description, ` + rankLit(RankTextMatch) + ` AS rank
		FROM routes m ` + c.joinSQL() + `
		WHERE m.id IN (` + idPH + `) AND ` + c.whereSQL() + `
		` + c.excludeSQL + `
		GROUP BY m.id
		` + c.havingSQL + `
		ORDER BY m.name ASC
		LIMIT ?`

	params := make([]any, 0, len(ids)+len(c.whereParams)+len(c.excludeParams)+len(c.havingParams)+1)
	for _, id := range ids {
		params = append(params, id)
	}
	params = append(params, c.whereParams...)
	params = append(params, c.excludeParams...)
	params = append(params, c.havingParams...)
	params = append(params, limit)

	return db.queryHits(q, params)
}

// SearchFuzzy runs the substring fallback pass: every pattern is tried
// case-insensitively against name, summary, and description, OR-combined.
func (db *DB) SearchFuzzy(patterns []string, f Filters, limit int) ([]RouteHit, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	c := f.compose(db.hasMetrics)

	const block = "(m.name LIKE ? COLLATE NOCASE OR m.summary LIKE ? COLLATE NOCASE OR m.description LIKE ? COLLATE NOCASE)"
	likeSQL := ""
	var likeParams []any
	for i, p := range patterns {
		if i > 0 {
			likeSQL += " OR "
		}
		likeSQL += block
		likeParams = append(likeParams, p, p, p)
	}

	q := `
		SELECT m.id, m.name, m.summary, m.description, ` + rankLit(RankFuzzy) + ` AS rank
		FROM routes m ` + c.joinSQL() + `
		WHERE (` + likeSQL + `) AND ` + c.whereSQL() + `
		` + c.excludeSQL + `
		GROUP BY m.id
		` + c.havingSQL + `
		ORDER BY m.name ASC
		LIMIT ?`

	params := append(likeParams, c.whereParams...)
	params = append(params, c.excludeParams...)
	params = append(params, c.havingParams...)
	params = append(params, limit)

	hits, err := db.queryHits(q, params)
	if err != nil {
		return nil, fmt.Errorf("store: fuzzy search: %w", err)
	}
	return hits, nil
}

// SearchTags runs the tag-only fallback pass, ignoring free text entirely.
func (db *DB) SearchTags(f Filters, limit int) ([]RouteHit, error) {
	if len(f.IncludeTags) == 0 {
		return nil, nil
	}

	c := f.compose(db.hasMetrics)

	q := `
		SELECT m.id, m.name, m.summary, m.description, ` + rankLit(RankTagOnly) + ` AS rank
		FROM routes m ` + c.joinSQL() + `
		WHERE ` + c.whereSQL() + `
		` + c.excludeSQL + `
		GROUP BY m.id
		` + c.havingSQL + `
		ORDER BY m.name ASC
		LIMIT ?`

	params := append(c.whereParams, c.excludeParams...)
	params = append(params, c.havingParams...)
	params = append(params, limit)

	hits, err := db.queryHits(q, params)
	if err != nil {
		return nil, fmt.Errorf("store: tag search: %w", err)
	}
	return hits, nil
}

// TagsForRoutes returns the tag lists for the given route ids in one query.
func (db *DB) TagsForRoutes(ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}
	rows, err := db.conn.Query(
		`SELECT route_id, tag FROM route_tags WHERE route_id IN (`+placeholders(len(ids))+`) ORDER BY tag ASC`,
		params...)
	if err != nil {
		return nil, fmt.Errorf("store: tags for routes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

func (db *DB) queryHits(q string, params []any) ([]RouteHit, error) {
	rows, err := db.conn.Query(q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteHit
	for rows.Next() {
		var h RouteHit
		var summary, description sql.NullString
		if err := rows.Scan(&h.ID, &h.Name, &summary, &description, &h.Rank); err != nil {
			return nil, err
		}
		h.Summary = summary.String
		h.Description = description.String
		out = append(out, h)
	}
	return out, rows.Err()
}

func rankLit(rank float64) string {
	return fmt.Sprintf("%.1f", rank)
}
