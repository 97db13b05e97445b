package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/query"
	"github.com/munrobagger/cairn/internal/search"
	"github.com/munrobagger/cairn/internal/store"
)

const (
	chatDefaultLimit = 8
	// broadSliceItems bounds how much of the dataset is offered to the LLM
	// when retrieval finds nothing.
	broadSliceItems = 250
	broadLineCap    = 120
	broadPickCap    = 6
	summaryTrimLen  = 220
)

// routeData is the slice of the store the orchestrator reads directly.
type routeData interface {
	ListRoutes(store.ListFilter) ([]models.Route, error)
	TagsForRoutes([]int64) (map[int64][]string, error)
	NamePool() ([]store.RouteName, error)
}

// Intent is the structured filter set extracted from a user message.
type Intent struct {
	Query       string   `json:"query"`
	IncludeTags []string `json:"include_tags"`
	ExcludeTags []string `json:"exclude_tags"`
	BogMax      *int     `json:"bog_max"`
	GradeMax    any      `json:"grade_max"`
}

// RouteLink is a compact route reference in a chat answer.
type RouteLink struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Steps exposes the orchestrator's working for debugging clients.
type Steps struct {
	Intent        Intent                `json:"intent"`
	RetrievalMode string                `json:"retrieval_mode"`
	Results       []models.SearchResult `json:"results"`
	BroadCount    int                   `json:"broad_count"`
}

// Response is a synthesized chat answer with its supporting routes.
type Response struct {
	Answer string      `json:"answer"`
	Routes []RouteLink `json:"routes"`
	Steps  Steps       `json:"steps"`
}

// Orchestrator composes intent extraction, cascade retrieval, a broad
// dataset fallback, and answer synthesis. The LLM handle is injected at
// construction; availability is decided once, not per call.
type Orchestrator struct {
	llm       Completer
	available bool
	search    *search.Service
	db        routeData
	logger    *slog.Logger
}

// NewOrchestrator creates the chat orchestrator. A nil completer produces
// an orchestrator whose Chat always fails with ErrLLMNotConfigured.
func NewOrchestrator(llm Completer, svc *search.Service, db routeData, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		llm:       llm,
		available: llm != nil,
		search:    svc,
		db:        db,
		logger:    logger,
	}
}

// Available reports whether chat requests can be served.
func (o *Orchestrator) Available() bool { return o.available }

// Chat answers a free-text message about routes.
func (o *Orchestrator) Chat(ctx context.Context, message string, limit int) (*Response, error) {
	if !o.available {
		return nil, apperr.ErrLLMNotConfigured
	}
	message = strings.TrimSpace(message)
	if limit <= 0 {
		limit = chatDefaultLimit
	}

	intent := o.extractIntent(ctx, message)

	resp, err := o.search.Search(search.Request{
		Query:       intent.Query,
		IncludeTags: intent.IncludeTags,
		ExcludeTags: intent.ExcludeTags,
		BogMax:      intent.BogMax,
		GradeMax:    intent.GradeMax,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: retrieval: %w", err)
	}
	candidates := resp.Results

	routes := make([]RouteLink, 0, len(candidates))
	for _, r := range candidates {
		routes = append(routes, RouteLink{ID: r.ID, Name: r.Name, Tags: r.Tags})
	}

	mode := "cascade"
	broadCount := 0
	var datasetSummary string
	if len(candidates) == 0 {
		mode = "llm_broad"
		datasetSummary, routes, err = o.broadFallback(ctx, message)
		if err != nil {
			return nil, err
		}
		broadCount = len(routes)
	}

	answer, err := o.synthesize(ctx, message, candidates, datasetSummary)
	if err != nil {
		return nil, err
	}

	return &Response{
		Answer: answer,
		Routes: routes,
		Steps: Steps{
			Intent:        intent,
			RetrievalMode: mode,
			Results:       candidates,
			BroadCount:    broadCount,
		},
	}, nil
}

const intentSystem = "Extract structured filters for Munro route search."

// extractIntent asks the LLM for a compact query and tag filters. Any
// parse failure degrades to treating the whole message as the query.
func (o *Orchestrator) extractIntent(ctx context.Context, message string) Intent {
	prompt := fmt.Sprintf(`You are an intent parser for a Munro route assistant.
Extract a compact search query and tag filters from the user message. Use only these tags:
%s

Rules:
- Include only tags clearly implied. Be conservative.
- 'river_crossing' only if explicit wade/ford, no bridge/stepping stones.
- Transport: add 'bus'/'train' if feasible/mentioned; 'bike' if cycle access implied.
- Return STRICT JSON with fields: query, include_tags, exclude_tags, bog_max, grade_max.

User message: %s`, strings.Join(models.AllowedTags(), ", "), message)

	fallback := Intent{Query: message}

	raw, err := o.llm.Complete(ctx, intentSystem, prompt)
	if err != nil {
		o.logger.Warn("chat: intent extraction failed", slog.String("error", err.Error()))
		return fallback
	}

	var intent Intent
	if err := json.Unmarshal(extractJSON(raw), &intent); err != nil {
		o.logger.Warn("chat: intent parse failed", slog.String("raw", raw))
		return fallback
	}
	return intent
}

// broadFallback offers the LLM a compact dataset view and asks it to pick
// route names, which are then mapped back to stored routes.
func (o *Orchestrator) broadFallback(ctx context.Context, message string) (string, []RouteLink, error) {
	summary, err := o.datasetSummary()
	if err != nil {
		return "", nil, err
	}

	names := o.pickRouteNames(ctx, summary, message)
	if len(names) == 0 {
		return summary, []RouteLink{}, nil
	}

	pool, err := o.db.NamePool()
	if err != nil {
		return "", nil, fmt.Errorf("chat: name pool: %w", err)
	}
	candidates := make([]query.Candidate, len(pool))
	for i, r := range pool {
		candidates[i] = query.Candidate{ID: r.ID, Name: r.Name}
	}
	resolver := query.NewResolver(candidates)

	var mapped []query.Candidate
	var ids []int64
	for _, n := range names {
		if c, ok := resolver.Resolve(n); ok {
			mapped = append(mapped, c)
			ids = append(ids, c.ID)
		}
	}

	tags, err := o.db.TagsForRoutes(ids)
	if err != nil {
		return "", nil, fmt.Errorf("chat: fallback tags: %w", err)
	}

	links := make([]RouteLink, len(mapped))
	for i, c := range mapped {
		t := tags[c.ID]
		if t == nil {
			t = []string{}
		}
		links[i] = RouteLink{ID: c.ID, Name: c.Name, Tags: t}
	}
	return summary, links, nil
}

// datasetSummary renders a bounded one-line-per-route view of the dataset.
func (o *Orchestrator) datasetSummary() (string, error) {
	routes, err := o.db.ListRoutes(store.ListFilter{})
	if err != nil {
		return "", fmt.Errorf("chat: dataset slice: %w", err)
	}
	if len(routes) > broadSliceItems {
		routes = routes[:broadSliceItems]
	}

	ids := make([]int64, len(routes))
	for i, r := range routes {
		ids[i] = r.ID
	}
	tags, err := o.db.TagsForRoutes(ids)
	if err != nil {
		return "", fmt.Errorf("chat: dataset tags: %w", err)
	}

	var b strings.Builder
	for i, r := range routes {
		if i >= broadLineCap {
			break
		}
		summary := r.Summary
		if utf8.RuneCountInString(summary) > summaryTrimLen {
			summary = string([]rune(summary)[:summaryTrimLen]) + "…"
		}
		fmt.Fprintf(&b, "- %s | tags: %s | terrain: %s | transport: %s | start: %s | %s\n",
			r.Name, strings.Join(tags[r.ID], ", "), r.Terrain, r.PublicTransport, r.Start, summary)
	}
	return b.String(), nil
}

const pickSystem = "Select matching items from a provided list and return strict JSON."

// pickRouteNames asks the LLM to choose route names verbatim from the
// dataset summary. Failures produce an empty pick, never an error.
func (o *Orchestrator) pickRouteNames(ctx context.Context, summary, message string) []string {
	prompt := fmt.Sprintf(`From the dataset lines below, pick up to %d route *names* that best match the user's request.

Rules:
- Only return names that appear verbatim in the dataset lines.
- Be conservative and prefer routes clearly matching the request (terrain/tags/transport/area).
- Return STRICT JSON: {"names": ["Name One","Name Two"]}

User request: %q

Dataset lines:
%s`, broadPickCap, message, summary)

	raw, err := o.llm.Complete(ctx, pickSystem, prompt)
	if err != nil {
		o.logger.Warn("chat: broad pick failed", slog.String("error", err.Error()))
		return nil
	}

	var picked struct {
		Names []string `json:"names"`
	}
	if err := json.Unmarshal(extractJSON(raw), &picked); err != nil {
		return nil
	}
	var names []string
	for _, n := range picked.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) > broadPickCap {
		names = names[:broadPickCap]
	}
	return names
}

const synthesisSystem = "Answer based only on the provided context."

// synthesize produces the final natural-language answer from either the
// retrieval results or the broad dataset view.
func (o *Orchestrator) synthesize(ctx context.Context, message string, candidates []models.SearchResult, datasetSummary string) (string, error) {
	var grounding string
	if len(candidates) > 0 {
		var b strings.Builder
		for _, r := range candidates {
			fmt.Fprintf(&b, "- %s: %s\n  %s\n", r.Name, strings.Join(r.Tags, ", "), r.Snippet)
		}
		grounding = b.String()
	} else {
		grounding = "No exact matches from search. Consider these dataset items:\n\n" + datasetSummary
	}

	prompt := fmt.Sprintf(`You are a helpful Munro route assistant.
User asked: %q

Context:
%s

Write a concise helpful answer:
- If exact matches were provided, start with 1-2 routes that best fit, then alternatives.
- If no exact matches were provided (dataset view), pick 3-6 routes that best fit and justify briefly.
- Explain why they fit (use tags like 'scramble','airy','bus','train','camping','multiday', etc.).
- Offer transport hints if 'bus'/'train' are present.
- Keep it under ~180 words and avoid generic filler.`, message, grounding)

	answer, err := o.llm.Complete(ctx, synthesisSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("chat: synthesis: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// extractJSON pulls the outermost JSON object from a completion that may
// wrap it in prose or markdown fences.
func extractJSON(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}
