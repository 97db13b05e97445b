// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Cairn's search and ranking tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/geo"
	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/search"
	"github.com/munrobagger/cairn/internal/store"
)

// Server wraps the MCP server with Cairn tools.
type Server struct {
	mcp    *server.MCPServer
	db     *store.DB
	search *search.Service
	ranker *geo.Ranker
}

// New creates a new MCP server with all Cairn tools registered.
func New(db *store.DB, searchSvc *search.Service, ranker *geo.Ranker) *Server {
	s := &Server{db: db, search: searchSvc, ranker: ranker}

	s.mcp = server.NewMCPServer(
		"Cairn",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_routes",
		mcp.WithDescription("Search Munro routes by free text and tags. "+
			"Runs the text-match, fuzzy, tag-only cascade. "+
			"Tags must come from the fixed vocabulary returned by list_tags."),
		mcp.WithString("query", mcp.Description("Free-text search query")),
		mcp.WithString("include_tags", mcp.Description("Comma-separated tags a route must all carry")),
		mcp.WithString("exclude_tags", mcp.Description("Comma-separated tags a route must not carry")),
		mcp.WithString("grade_max", mcp.Description("Difficulty ceiling: 1-5 or easy/moderate/hard/serious")),
	), s.searchRoutes)

	s.mcp.AddTool(mcp.NewTool("nearest_routes",
		mcp.WithDescription("Rank routes by distance from a place name in Scotland."),
		mcp.WithString("place", mcp.Required(), mcp.Description("Place name, e.g. 'Aviemore' or 'Fort William'")),
		mcp.WithString("include_tags", mcp.Description("Comma-separated tags a route must all carry")),
	), s.nearestRoutes)

	s.mcp.AddTool(mcp.NewTool("get_route",
		mcp.WithDescription("Read the full record of a single route by numeric id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Route id")),
	), s.getRoute)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the fixed tag vocabulary with per-tag route counts."),
	), s.listTags)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) searchRoutes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	include := splitTags(req.GetString("include_tags", ""))
	exclude := splitTags(req.GetString("exclude_tags", ""))
	var gradeMax any
	if g := req.GetString("grade_max", ""); g != "" {
		gradeMax = g
	}

	if query == "" && len(include) == 0 {
		return mcp.NewToolResultError("provide a query or include_tags"), nil
	}

	resp, err := s.search.Search(search.Request{
		Query:       query,
		IncludeTags: include,
		ExcludeTags: exclude,
		GradeMax:    gradeMax,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) nearestRoutes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	place, err := req.RequireString("place")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	include := splitTags(req.GetString("include_tags", ""))

	resp, err := s.ranker.Nearest(ctx, geo.NearestRequest{
		Place:       place,
		IncludeTags: include,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid id: %s", idStr)), nil
	}

	route, err := s.db.GetRoute(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %d", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := s.db.TagsForRoutes([]int64{id})
	if err == nil {
		route.Tags = tags[id]
	}
	out, _ := json.MarshalIndent(route, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.db.TagCounts()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// Tags without routes yet still belong in the vocabulary listing.
	counted := make(map[string]bool, len(counts))
	for _, c := range counts {
		counted[c.Tag] = true
	}
	for _, t := range models.AllowedTags() {
		if !counted[t] {
			counts = append(counts, models.TagCount{Tag: t})
		}
	}
	out, _ := json.MarshalIndent(counts, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
