package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/chat"
	"github.com/munrobagger/cairn/internal/geo"
	"github.com/munrobagger/cairn/internal/search"
	"github.com/munrobagger/cairn/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	db     *store.DB
	search *search.Service
	ranker *geo.Ranker
	chat   *chat.Orchestrator
}

// NewHandler creates a new Handler.
func NewHandler(db *store.DB, searchSvc *search.Service, ranker *geo.Ranker, chatSvc *chat.Orchestrator) *Handler {
	return &Handler{db: db, search: searchSvc, ranker: ranker, chat: chatSvc}
}

// Health handles GET /api/health.
//
//	@Summary		Liveness check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// ListMunros handles GET /api/munros.
//
//	@Summary		List routes with optional filtering
//	@Tags			munros
//	@Produce		json
//	@Param			grade	query		int		false	"Exact grade"
//	@Param			bog		query		int		false	"Maximum bog factor"
//	@Param			search	query		string	false	"Substring match on name/summary"
//	@Param			id		query		int		false	"Single route id"
//	@Success		200		{object}	MunroListResponse
//	@Security		BearerAuth
//	@Router			/munros [get]
func (h *Handler) ListMunros(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.ListFilter
	if v, err := strconv.Atoi(q.Get("grade")); err == nil {
		f.Grade = &v
	}
	if v, err := strconv.Atoi(q.Get("bog")); err == nil {
		f.BogMax = &v
	}
	if v, err := strconv.ParseInt(q.Get("id"), 10, 64); err == nil {
		f.ID = &v
	}
	f.Search = q.Get("search")

	routes, err := h.db.ListRoutes(f)
	if err != nil {
		slog.Error("list munros failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, MunroListResponse{Munros: routes, Total: len(routes)})
}

// GetMunro handles GET /api/munros/{id}.
//
//	@Summary		Get a single route by id
//	@Tags			munros
//	@Produce		json
//	@Param			id	path		int	true	"Route id"
//	@Success		200	{object}	models.Route
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/munros/{id} [get]
func (h *Handler) GetMunro(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	route, err := h.db.GetRoute(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get munro failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	tags, err := h.db.TagsForRoutes([]int64{id})
	if err == nil {
		route.Tags = tags[id]
	}
	if route.Tags == nil {
		route.Tags = []string{}
	}
	writeJSON(w, http.StatusOK, route)
}

// ListTags handles GET /api/tags.
//
//	@Summary		List tags with usage counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.TagCounts()
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: counts})
}

// Search handles POST /api/search.
//
//	@Summary		Multi-pass route search
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SearchRequest	true	"Search payload"
//	@Success		200		{object}	search.Response
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	resp, err := h.search.Search(search.Request{
		Query:         req.Query,
		IncludeTags:   req.IncludeTags,
		ExcludeTags:   req.ExcludeTags,
		BogMax:        req.BogMax,
		GradeMax:      req.GradeMax,
		DistanceMinKM: req.DistanceMinKM,
		DistanceMaxKM: req.DistanceMaxKM,
		TimeMinH:      req.TimeMinH,
		TimeMaxH:      req.TimeMaxH,
		Limit:         req.Limit,
	})
	if err != nil {
		slog.Error("search failed", slog.String("query", req.Query), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Nearest handles POST /api/nearest.
//
//	@Summary		Routes nearest to a place
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NearestRequest	true	"Nearest payload"
//	@Success		200		{object}	geo.NearestResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nearest [post]
func (h *Handler) Nearest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req NearestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Place == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("place is required"))
		return
	}

	resp, err := h.ranker.Nearest(r.Context(), geo.NearestRequest{
		Place:         req.Place,
		IncludeTags:   req.IncludeTags,
		ExcludeTags:   req.ExcludeTags,
		GradeMax:      req.GradeMax,
		BogMax:        req.BogMax,
		DistanceMinKM: req.DistanceMinKM,
		DistanceMaxKM: req.DistanceMaxKM,
		TimeMinH:      req.TimeMinH,
		TimeMaxH:      req.TimeMaxH,
		Limit:         req.Limit,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrLocationNotFound):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("could not resolve place"))
		case errors.Is(err, apperr.ErrGeocoderUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("geocoder unavailable"))
		case errors.Is(err, apperr.ErrCoordCacheEmpty):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("coordinate cache is empty"))
		default:
			slog.Error("nearest failed", slog.String("place", req.Place), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Chat handles POST /api/chat.
//
//	@Summary		Conversational route assistant
//	@Tags			chat
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChatRequest	true	"Chat payload"
//	@Success		200		{object}	chat.Response
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat [post]
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("message is required"))
		return
	}

	resp, err := h.chat.Chat(r.Context(), req.Message, req.Limit)
	if err != nil {
		if errors.Is(err, apperr.ErrLLMNotConfigured) {
			writeJSON(w, http.StatusInternalServerError, errorBody("LLM not configured"))
			return
		}
		slog.Error("chat failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
