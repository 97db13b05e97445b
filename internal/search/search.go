// Package search implements the multi-pass retrieval cascade: text-index
// match, fuzzy substring fallback, then tag-only fallback, short-circuiting
// on the first pass that yields results.
package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/query"
	"github.com/munrobagger/cairn/internal/store"
)

const (
	defaultLimit  = 12
	snippetMaxLen = 400
)

// Pass identifies which cascade tier produced the results.
type Pass string

const (
	PassText  Pass = "text"
	PassFuzzy Pass = "fuzzy"
	PassTags  Pass = "tags"
	PassNone  Pass = "none"
)

// Request is a structured search payload. GradeMax is any because callers
// send ints, numeric strings, or difficulty words; it is normalized here.
type Request struct {
	Query       string
	IncludeTags []string
	ExcludeTags []string
	BogMax      *int
	GradeMax    any

	DistanceMinKM *float64
	DistanceMaxKM *float64
	TimeMinH      *float64
	TimeMaxH      *float64

	Limit int
}

// Response carries the winning pass and its enriched results.
type Response struct {
	Query     string                `json:"query"`
	MatchExpr string                `json:"match_expr,omitempty"`
	Pass      Pass                  `json:"pass"`
	Results   []models.SearchResult `json:"results"`
}

// Service orchestrates the cascade over the store.
type Service struct {
	db store.RouteIndex
}

// NewService creates a search service.
func NewService(db store.RouteIndex) *Service {
	return &Service{db: db}
}

// Search runs the three-tier cascade. Passes are strictly sequential and
// the first non-empty result set wins; an empty outcome after all tiers is
// valid, not an error.
func (s *Service) Search(req Request) (*Response, error) {
	raw := strings.TrimSpace(req.Query)
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	f := s.buildFilters(req, raw)
	expr := query.ExpandForMatch(raw)

	var (
		hits []store.RouteHit
		pass = PassNone
		err  error
	)

	// Pass 1: text-index match. Skipped when the normalizer produced no
	// expression or the build carries no text index.
	if expr != "" && s.db.TextIndexAvailable() {
		hits, err = s.db.SearchMatch(expr, f, limit)
		if err != nil {
			return nil, fmt.Errorf("search: text pass: %w", err)
		}
		if len(hits) > 0 {
			pass = PassText
		}
	}

	// Pass 2: fuzzy substring fallback.
	if len(hits) == 0 && raw != "" {
		patterns := query.BuildFuzzyTerms(raw)
		if len(patterns) > 0 {
			hits, err = s.db.SearchFuzzy(patterns, f, limit)
			if err != nil {
				return nil, fmt.Errorf("search: fuzzy pass: %w", err)
			}
			if len(hits) > 0 {
				pass = PassFuzzy
			}
		}
	}

	// Pass 3: tag-only fallback, ignoring free text entirely.
	if len(hits) == 0 && len(f.IncludeTags) > 0 {
		hits, err = s.db.SearchTags(f, limit)
		if err != nil {
			return nil, fmt.Errorf("search: tag pass: %w", err)
		}
		if len(hits) > 0 {
			pass = PassTags
		}
	}

	results, err := s.enrich(hits)
	if err != nil {
		return nil, err
	}

	return &Response{
		Query:     raw,
		MatchExpr: expr,
		Pass:      pass,
		Results:   results,
	}, nil
}

// buildFilters normalizes the request into a typed filter set. Unknown tags
// are silently dropped; numeric bounds absent from the payload are picked
// up from the free text when expressed there.
func (s *Service) buildFilters(req Request, raw string) store.Filters {
	f := store.Filters{
		IncludeTags:   models.FilterAllowed(req.IncludeTags),
		ExcludeTags:   models.FilterAllowed(req.ExcludeTags),
		BogMax:        req.BogMax,
		GradeMax:      query.NormalizeGradeCeiling(req.GradeMax),
		DistanceMinKM: req.DistanceMinKM,
		DistanceMaxKM: req.DistanceMaxKM,
		TimeMinH:      req.TimeMinH,
		TimeMaxH:      req.TimeMaxH,
	}

	if f.DistanceMinKM == nil && f.DistanceMaxKM == nil && f.TimeMinH == nil && f.TimeMaxH == nil {
		parsed := query.ParseNumericFilters(raw)
		f.DistanceMinKM = parsed.DistanceMinKM
		f.DistanceMaxKM = parsed.DistanceMaxKM
		f.TimeMinH = parsed.TimeMinH
		f.TimeMaxH = parsed.TimeMaxH
	}

	return f
}

// enrich attaches tag lists (one batch lookup, never per-item queries) and
// builds result items with truncated snippets.
func (s *Service) enrich(hits []store.RouteHit) ([]models.SearchResult, error) {
	if len(hits) == 0 {
		return []models.SearchResult{}, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	tags, err := s.db.TagsForRoutes(ids)
	if err != nil {
		return nil, fmt.Errorf("search: enrich tags: %w", err)
	}

	out := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		t := tags[h.ID]
		if t == nil {
			t = []string{}
		}
		out[i] = models.SearchResult{
			ID:      h.ID,
			Name:    h.Name,
			Summary: h.Summary,
			Snippet: Snippet(h.Description),
			Tags:    t,
			Rank:    h.Rank,
		}
	}
	return out, nil
}

// Snippet truncates a description for result payloads.
func Snippet(description string) string {
	if utf8.RuneCountInString(description) <= snippetMaxLen {
		return description
	}
	runes := []rune(description)
	return string(runes[:snippetMaxLen])
}
