package store

import "strings"

// Filters is the typed filter set the search layer hands to the store.
// The composer below renders it into SQL once, so cascade control flow
// never assembles query strings itself.
type Filters struct {
	IncludeTags []string
	ExcludeTags []string
	GradeMax    *int
	BogMax      *int

	DistanceMinKM *float64
	DistanceMaxKM *float64
	TimeMinH      *float64
	TimeMaxH      *float64
}

// clauses is the rendered form of a Filters value, split the way the
// search statements consume it: placeholders already in, parameters in
// statement order (where, exclude, having).
type clauses struct {
	joins        []string
	wheres       []string
	whereParams  []any
	excludeSQL   string
	excludeParams []any
	havingSQL    string
	havingParams []any
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// compose renders f. Include tags use AND semantics: the route must match
// every requested tag, expressed as a count of distinct matched tags over
// the one-row-per-(route,tag) relation compared to the requested set size.
// withMetrics gates the distance/time bounds on column availability.
func (f Filters) compose(withMetrics bool) clauses {
	c := clauses{wheres: []string{"1=1"}}

	if len(f.IncludeTags) > 0 {
		ph := placeholders(len(f.IncludeTags))
		c.joins = append(c.joins, "JOIN route_tags t_in ON t_in.route_id = m.id")
		c.wheres = append(c.wheres, "t_in.tag IN ("+ph+")")
		for _, t := range f.IncludeTags {
			c.whereParams = append(c.whereParams, t)
		}
		c.havingSQL = "HAVING COUNT(DISTINCT CASE WHEN t_in.tag IN (" + ph + ") THEN t_in.tag END) = ?"
		for _, t := range f.IncludeTags {
			c.havingParams = append(c.havingParams, t)
		}
		c.havingParams = append(c.havingParams, len(f.IncludeTags))
	}

	if len(f.ExcludeTags) > 0 {
		ph := placeholders(len(f.ExcludeTags))
		c.excludeSQL = "AND m.id NOT IN (SELECT route_id FROM route_tags WHERE tag IN (" + ph + "))"
		for _, t := range f.ExcludeTags {
			c.excludeParams = append(c.excludeParams, t)
		}
	}

	// Numeric ceilings never reject routes with unknown attributes.
	if f.BogMax != nil {
		c.wheres = append(c.wheres, "(m.bog IS NULL OR m.bog <= ?)")
		c.whereParams = append(c.whereParams, *f.BogMax)
	}
	if f.GradeMax != nil {
		c.wheres = append(c.wheres, "(m.grade IS NULL OR m.grade <= ?)")
		c.whereParams = append(c.whereParams, *f.GradeMax)
	}

	if withMetrics {
		if f.DistanceMinKM != nil {
			c.wheres = append(c.wheres, "(m.distance IS NULL OR m.distance >= ?)")
			c.whereParams = append(c.whereParams, *f.DistanceMinKM)
		}
		if f.DistanceMaxKM != nil {
			c.wheres = append(c.wheres, "(m.distance IS NULL OR m.distance <= ?)")
			c.whereParams = append(c.whereParams, *f.DistanceMaxKM)
		}
		if f.TimeMinH != nil {
			c.wheres = append(c.wheres, "(m.time IS NULL OR m.time >= ?)")
			c.whereParams = append(c.whereParams, *f.TimeMinH)
		}
		if f.TimeMaxH != nil {
			c.wheres = append(c.wheres, "(m.time IS NULL OR m.time <= ?)")
			c.whereParams = append(c.whereParams, *f.TimeMaxH)
		}
	}

	return c
}

func (c clauses) joinSQL() string {
	return strings.Join(c.joins, " ")
}

func (c clauses) whereSQL() string {
	return strings.Join(c.wheres, " AND ")
}
