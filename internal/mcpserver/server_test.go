package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/munrobagger/cairn/internal/geo"
	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/search"
	"github.com/munrobagger/cairn/internal/store"
	"github.com/munrobagger/cairn/internal/testutil"
)

type fakeGeocoder struct {
	answers map[string]*geo.Point
}

func (f *fakeGeocoder) Geocode(_ context.Context, q, _ string) (*geo.Point, error) {
	return f.answers[q], nil
}

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()

	db := testutil.TestDB(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	geocoder := &fakeGeocoder{answers: map[string]*geo.Point{
		"Aviemore, Scotland": {Lat: 57.1951, Lon: -3.8267},
	}}
	ranker := geo.NewRanker(db, geo.NewCoordCache(db, logger), geo.NewPlaceResolver(geocoder))

	srv := New(db, search.NewService(db), ranker)
	return srv, db
}

func seedRoute(t *testing.T, db *store.DB, name string, grade int, tags ...string) int64 {
	t.Helper()
	id, err := db.InsertRoute(models.Route{Name: name, Summary: "summary of " + name, Grade: &grade})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceTags(id, tags); err != nil {
		t.Fatal(err)
	}
	return id
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_routes":
		result, err = srv.searchRoutes(ctx, req)
	case "nearest_routes":
		result, err = srv.nearestRoutes(ctx, req)
	case "get_route":
		result, err = srv.getRoute(ctx, req)
	case "list_tags":
		result, err = srv.listTags(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchRoutesTool(t *testing.T) {
	srv, db := testServer(t)
	seedRoute(t, db, "Aonach Eagach", 5, "ridge", "scramble")
	seedRoute(t, db, "Ben Lomond", 3, "popular")

	r := callTool(t, srv, "search_routes", map[string]interface{}{
		"include_tags": "ridge,scramble",
	})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}

	var resp search.Response
	if err := json.Unmarshal([]byte(resultText(r)), &resp); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Name != "Aonach Eagach" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchRoutesTool_RequiresInput(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "search_routes", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for empty search")
	}
}

func TestNearestRoutesTool(t *testing.T) {
	srv, db := testServer(t)
	seedRoute(t, db, "Cairn Gorm", 3, "popular")
	if err := db.UpsertCoords([]models.CoordEntry{
		{Name: "Cairn Gorm", Lat: 57.1167, Lon: -3.6764, Source: "nominatim"},
	}); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "nearest_routes", map[string]interface{}{
		"place": "Aviemore",
	})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "Cairn Gorm") {
		t.Errorf("payload missing route: %s", resultText(r))
	}
}

func TestGetRouteTool(t *testing.T) {
	srv, db := testServer(t)
	id := seedRoute(t, db, "Schiehallion", 3, "popular", "views")

	r := callTool(t, srv, "get_route", map[string]interface{}{
		"id": itoa(id),
	})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var route models.Route
	if err := json.Unmarshal([]byte(resultText(r)), &route); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if route.Name != "Schiehallion" || len(route.Tags) != 2 {
		t.Errorf("route = %+v", route)
	}

	r = callTool(t, srv, "get_route", map[string]interface{}{"id": "99999"})
	if !r.IsError {
		t.Error("expected error for missing route")
	}
}

func TestListTagsTool(t *testing.T) {
	srv, db := testServer(t)
	seedRoute(t, db, "A", 3, "ridge")

	r := callTool(t, srv, "list_tags", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var counts []models.TagCount
	if err := json.Unmarshal([]byte(resultText(r)), &counts); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(counts) != len(models.AllowedTags()) {
		t.Errorf("got %d tags, want full vocabulary of %d", len(counts), len(models.AllowedTags()))
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
