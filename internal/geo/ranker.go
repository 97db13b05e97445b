package geo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/query"
	"github.com/munrobagger/cairn/internal/store"
)

const (
	nearestDefaultLimit = 10
	// candidateFloor keeps the shortlist wide enough that post-distance
	// filtering still leaves a full page of results.
	candidateFloor = 20
)

// NearestRequest asks for routes closest to a named place.
type NearestRequest struct {
	Place       string
	IncludeTags []string
	ExcludeTags []string
	GradeMax    any
	BogMax      *int

	DistanceMinKM *float64
	DistanceMaxKM *float64
	TimeMinH      *float64
	TimeMaxH      *float64

	Limit int
}

// NearestResponse carries the resolved origin and the ranked routes.
type NearestResponse struct {
	Place         string                `json:"place"`
	ResolvedQuery string                `json:"resolved_query"`
	Lat           float64               `json:"lat"`
	Lon           float64               `json:"lon"`
	Results       []models.SearchResult `json:"results"`
}

// Ranker orders routes by great-circle distance from a resolved place.
type Ranker struct {
	db       store.RouteIndex
	cache    *CoordCache
	resolver *PlaceResolver
}

// NewRanker creates a nearest-route ranker.
func NewRanker(db store.RouteIndex, cache *CoordCache, resolver *PlaceResolver) *Ranker {
	return &Ranker{db: db, cache: cache, resolver: resolver}
}

type candidate struct {
	route      *models.Route
	tags       []string
	distanceKM float64
	tagMatches int
}

// Nearest resolves the place, ranks every cached coordinate by distance,
// and returns the closest routes that survive the request's filters.
// Routes missing an attribute a filter targets are kept, not rejected.
func (r *Ranker) Nearest(ctx context.Context, req NearestRequest) (*NearestResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = nearestDefaultLimit
	}

	origin, resolvedQuery, err := r.resolver.Resolve(ctx, req.Place)
	if err != nil {
		return nil, err
	}

	coords, err := r.cache.Snapshot()
	if err != nil {
		return nil, err
	}

	type scored struct {
		name string
		km   float64
	}
	ranked := make([]scored, 0, len(coords))
	for _, c := range coords {
		ranked = append(ranked, scored{name: c.Name, km: Haversine(*origin, c.Point)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].km != ranked[j].km {
			return ranked[i].km < ranked[j].km
		}
		return ranked[i].name < ranked[j].name
	})

	// Over-fetch so filtering below still fills the page.
	shortlist := limit
	if shortlist < candidateFloor {
		shortlist = candidateFloor
	}
	if shortlist > len(ranked) {
		shortlist = len(ranked)
	}
	ranked = ranked[:shortlist]

	pool, err := r.db.NamePool()
	if err != nil {
		return nil, fmt.Errorf("geo: name pool: %w", err)
	}
	nameResolver := query.NewResolver(toCandidates(pool))

	includeTags := models.FilterAllowed(req.IncludeTags)
	excludeTags := models.FilterAllowed(req.ExcludeTags)
	gradeMax := query.NormalizeGradeCeiling(req.GradeMax)
	withMetrics := r.db.HasRouteMetrics()

	var candidates []candidate
	var ids []int64
	for _, s := range ranked {
		c, ok := nameResolver.Resolve(s.name)
		if !ok {
			continue
		}
		route, err := r.db.GetRoute(c.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			// Stale coordinate row; the route itself is gone.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("geo: load candidate %d: %w", c.ID, err)
		}
		candidates = append(candidates, candidate{route: route, distanceKM: s.km})
		ids = append(ids, route.ID)
	}

	tags, err := r.db.TagsForRoutes(ids)
	if err != nil {
		return nil, fmt.Errorf("geo: candidate tags: %w", err)
	}
	for i := range candidates {
		candidates[i].tags = tags[candidates[i].route.ID]
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if !passesFilters(c, includeTags, excludeTags, gradeMax, req, withMetrics) {
			continue
		}
		c.tagMatches = countMatches(c.tags, includeTags)
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].distanceKM != kept[j].distanceKM {
			return kept[i].distanceKM < kept[j].distanceKM
		}
		if kept[i].tagMatches != kept[j].tagMatches {
			return kept[i].tagMatches > kept[j].tagMatches
		}
		return kept[i].route.Name < kept[j].route.Name
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}

	results := make([]models.SearchResult, len(kept))
	for i, c := range kept {
		t := c.tags
		if t == nil {
			t = []string{}
		}
		km := c.distanceKM
		results[i] = models.SearchResult{
			ID:            c.route.ID,
			Name:          c.route.Name,
			Summary:       c.route.Summary,
			Tags:          t,
			Rank:          km,
			DistanceKM:    &km,
			RouteDistance: c.route.Distance,
			RouteTime:     c.route.Time,
		}
	}

	return &NearestResponse{
		Place:         req.Place,
		ResolvedQuery: resolvedQuery,
		Lat:           origin.Lat,
		Lon:           origin.Lon,
		Results:       results,
	}, nil
}

// passesFilters applies tag and ceiling filters. Numeric ceilings reject
// only routes that carry the attribute; routes without it pass through.
func passesFilters(c candidate, include, exclude []string, gradeMax *int, req NearestRequest, withMetrics bool) bool {
	tagSet := make(map[string]struct{}, len(c.tags))
	for _, t := range c.tags {
		tagSet[t] = struct{}{}
	}
	for _, t := range include {
		if _, ok := tagSet[t]; !ok {
			return false
		}
	}
	for _, t := range exclude {
		if _, ok := tagSet[t]; ok {
			return false
		}
	}

	if gradeMax != nil && c.route.Grade != nil && *c.route.Grade > *gradeMax {
		return false
	}
	if req.BogMax != nil && c.route.Bog != nil && *c.route.Bog > *req.BogMax {
		return false
	}

	if withMetrics {
		if req.DistanceMinKM != nil && c.route.Distance != nil && *c.route.Distance < *req.DistanceMinKM {
			return false
		}
		if req.DistanceMaxKM != nil && c.route.Distance != nil && *c.route.Distance > *req.DistanceMaxKM {
			return false
		}
		if req.TimeMinH != nil && c.route.Time != nil && *c.route.Time < *req.TimeMinH {
			return false
		}
		if req.TimeMaxH != nil && c.route.Time != nil && *c.route.Time > *req.TimeMaxH {
			return false
		}
	}
	return true
}

func countMatches(tags, include []string) int {
	if len(include) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range include {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

func toCandidates(pool []store.RouteName) []query.Candidate {
	out := make([]query.Candidate, len(pool))
	for i, r := range pool {
		out[i] = query.Candidate{ID: r.ID, Name: r.Name}
	}
	return out
}
