package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/store"
)

const (
	taggerTries       = 3
	taggerBaseBackoff = 600 * time.Millisecond
)

type taggerStore interface {
	ListRoutes(store.ListFilter) ([]models.Route, error)
	GetRoute(int64) (*models.Route, error)
	ReplaceTags(int64, []string) error
	UpsertTextIndex(id int64, name, summary, description, keywords string) error
	OptimizeTextIndex() error
}

// Tagger retags routes against the fixed ontology using the LLM and
// refreshes each route's text-index document in the same pass.
type Tagger struct {
	db     taggerStore
	llm    Completer
	logger *slog.Logger
}

// NewTagger creates a batch tagger.
func NewTagger(db taggerStore, llm Completer, logger *slog.Logger) *Tagger {
	return &Tagger{db: db, llm: llm, logger: logger}
}

// TagResult summarizes a tagging run.
type TagResult struct {
	Processed int
	Failed    int
}

// Run tags every route, or only the given ids. Per-route failures are
// logged and counted rather than aborting the batch.
func (t *Tagger) Run(ctx context.Context, ids []int64) (*TagResult, error) {
	routes, err := t.loadRoutes(ids)
	if err != nil {
		return nil, err
	}

	res := &TagResult{}
	for _, r := range routes {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		tags, keywords, err := t.tagOne(ctx, r)
		if err != nil {
			t.logger.Warn("tagger: route failed", slog.String("name", r.Name), slog.String("error", err.Error()))
			res.Failed++
			continue
		}
		if err := t.db.ReplaceTags(r.ID, tags); err != nil {
			return res, fmt.Errorf("chat: replace tags for %q: %w", r.Name, err)
		}
		if err := t.db.UpsertTextIndex(r.ID, r.Name, r.Summary, r.Description, keywords); err != nil {
			return res, fmt.Errorf("chat: index %q: %w", r.Name, err)
		}
		res.Processed++
		t.logger.Info("tagger: tagged", slog.String("name", r.Name), slog.Any("tags", tags))
	}

	if err := t.db.OptimizeTextIndex(); err != nil {
		return res, fmt.Errorf("chat: optimize index: %w", err)
	}
	return res, nil
}

func (t *Tagger) loadRoutes(ids []int64) ([]models.Route, error) {
	if len(ids) == 0 {
		routes, err := t.db.ListRoutes(store.ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("chat: list routes: %w", err)
		}
		return routes, nil
	}
	var routes []models.Route
	for _, id := range ids {
		r, err := t.db.GetRoute(id)
		if err != nil {
			return nil, fmt.Errorf("chat: load route %d: %w", id, err)
		}
		routes = append(routes, *r)
	}
	return routes, nil
}

const taggerSystem = "You are a strict tagger for Scottish Munro routes. " +
	"Use only the allowed one-word tags (except 'river_crossing'). " +
	"Never invent new tags."

// tagOne prompts the LLM for one route and parses tags plus index
// keywords. Suggested tags outside the ontology are dropped.
func (t *Tagger) tagOne(ctx context.Context, r models.Route) ([]string, string, error) {
	prompt := fmt.Sprintf(`Allowed tags (DO NOT add new ones):
%s

ROUTE DATA
Name: %s
Terrain (verbatim): %s
Public transport (verbatim): %s
Start / access (verbatim): %s
Description (excerpt): %s

TAGGING RULES (strict & conservative)
- Use ONLY allowed tags. Tags should be one word (except 'river_crossing', 'loose_rock').
- Select **3-6 tags total**. Each tag must be clearly supported by the text above.
- 'scramble' -> ONLY if actual scrambling (Grade 1+ or sustained hands-on ROCK moves). Not for steep grass, rough paths, or simple boulder fields.
- 'technical' -> pitched moves OR Grade 3 scrambling / climbing elements.
- 'exposure' -> ONLY for significant drops / precipitous narrow ridges/ledges (not weather exposure).
- 'pathless' -> sustained sections without a clear made path/markers (not short detours).
- 'river_crossing' -> ONLY if the text states the walker must wade/ford a river/stream without a bridge/stepping stones.
- Transport tags: include 'bus' and/or 'train' if feasible/mentioned; include 'bike' if cycle access is feasible. If none are mentioned, add no transport tag.
- Consider 'camping' or 'multiday' only where wild-camping or multi-day itineraries are common/mentioned.

KEYWORDS
- Produce 10-25 short, search-friendly keywords (place names, ridges, corries, bealachs, burns, lochs, bothies; approach junctions; escape routes; named PT stops).
- STRICTLY EXCLUDE: 'os maps', 'os', 'ordnance survey', 'view', 'views', 'viewpoint', 'munro', 'munros'.
- No duplicates. Use commas to separate keywords. Keep each keyword 1-4 words.

OUTPUT (STRICT JSON only)
{"tags": ["ridge","scramble","bus"], "keywords": "aonach eagach, ridge traverse, exposed arete, ..."}`,
		strings.Join(models.AllowedTags(), ", "),
		r.Name,
		clamp(r.Terrain, 800),
		clamp(r.PublicTransport, 800),
		clamp(r.Start, 800),
		clamp(r.Description, 1200))

	raw, err := t.completeWithRetry(ctx, taggerSystem, prompt)
	if err != nil {
		return nil, "", err
	}

	var parsed struct {
		Tags     []string `json:"tags"`
		Keywords string   `json:"keywords"`
	}
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		return nil, "", fmt.Errorf("chat: parse tagger output: %w", err)
	}
	return models.FilterAllowed(parsed.Tags), strings.TrimSpace(parsed.Keywords), nil
}

// completeWithRetry retries transient completion failures with
// exponential backoff.
func (t *Tagger) completeWithRetry(ctx context.Context, system, prompt string) (string, error) {
	backoff := taggerBaseBackoff
	var lastErr error
	for i := 0; i < taggerTries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		raw, err := t.llm.Complete(ctx, system, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
