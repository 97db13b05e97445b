package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(h *Handler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Liveness.
	r.Get("/health", h.Health)

	// Route catalogue.
	r.Get("/munros", h.ListMunros)
	r.Get("/munros/{id}", h.GetMunro)
	r.Get("/tags", h.ListTags)

	// Search and ranking.
	r.Post("/search", h.Search)
	r.Post("/nearest", h.Nearest)

	// Conversational layer.
	r.Post("/chat", h.Chat)

	return r
}
