package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/store"
)

var (
	benNevis = Point{Lat: 56.7969, Lon: -5.0036}
	perthAU  = Point{Lat: -31.9523, Lon: 115.8613}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHaversine(t *testing.T) {
	if d := Haversine(benNevis, benNevis); d != 0 {
		t.Errorf("zero distance = %v", d)
	}
	// One degree of latitude on a 6371.0088 km sphere.
	a := Point{Lat: 56, Lon: -4}
	b := Point{Lat: 57, Lon: -4}
	want := 2 * math.Pi * earthRadiusKM / 360
	if d := Haversine(a, b); math.Abs(d-want) > 0.01 {
		t.Errorf("1 degree latitude = %v km, want %v", d, want)
	}
}

func TestInScotland(t *testing.T) {
	if !InScotland(benNevis) {
		t.Error("Ben Nevis should be inside the bounding box")
	}
	if InScotland(perthAU) {
		t.Error("Perth, Australia should be outside the bounding box")
	}
}

// fakeGeocoder answers from a script keyed by the exact query string.
type fakeGeocoder struct {
	answers map[string]*Point
	errs    map[string]error
	err     error

	mu    sync.Mutex
	calls []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, q, _ string) (*Point, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if e, ok := f.errs[q]; ok {
		return nil, e
	}
	return f.answers[q], nil
}

func TestPlaceResolver_RejectsOutOfBoundsHit(t *testing.T) {
	// "Perth, Scotland" first variant resolves correctly; a bare "Perth"
	// would land in Australia and must never be returned.
	g := &fakeGeocoder{answers: map[string]*Point{
		"Perth, Scotland": {Lat: 56.3950, Lon: -3.4308},
		"Perth":           &perthAU,
	}}
	r := NewPlaceResolver(g)

	p, resolved, err := r.Resolve(context.Background(), "Perth")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !InScotland(*p) {
		t.Errorf("resolved point %+v is outside Scotland", p)
	}
	if resolved != "Perth, Scotland" {
		t.Errorf("resolved query = %q, want the qualified variant", resolved)
	}
}

func TestPlaceResolver_FallsBackToBareVariant(t *testing.T) {
	g := &fakeGeocoder{answers: map[string]*Point{
		"Aviemore": {Lat: 57.1951, Lon: -3.8267},
	}}
	r := NewPlaceResolver(g)

	p, resolved, err := r.Resolve(context.Background(), "Aviemore")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Lat != 57.1951 {
		t.Errorf("point = %+v", p)
	}
	if resolved != "Aviemore" {
		t.Errorf("resolved query = %q, want the bare variant", resolved)
	}
	if len(g.calls) != 2 {
		t.Errorf("calls = %v, want qualified variant tried first", g.calls)
	}
}

func TestPlaceResolver_NoMatch(t *testing.T) {
	r := NewPlaceResolver(&fakeGeocoder{})
	_, _, err := r.Resolve(context.Background(), "Atlantis")
	if !errors.Is(err, apperr.ErrLocationNotFound) {
		t.Errorf("err = %v, want ErrLocationNotFound", err)
	}
}

func TestPlaceResolver_Unavailable(t *testing.T) {
	g := &fakeGeocoder{err: fmt.Errorf("geo: %w: connection refused", apperr.ErrGeocoderUnavailable)}
	r := NewPlaceResolver(g)
	_, _, err := r.Resolve(context.Background(), "Glencoe")
	if !errors.Is(err, apperr.ErrGeocoderUnavailable) {
		t.Errorf("err = %v, want ErrGeocoderUnavailable", err)
	}
}

func TestPlaceResolver_AliasApplied(t *testing.T) {
	g := &fakeGeocoder{answers: map[string]*Point{
		"Fort William, Scotland": {Lat: 56.8198, Lon: -5.1052},
	}}
	r := NewPlaceResolver(g)
	if _, _, err := r.Resolve(context.Background(), "fort bill"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Ben More (Mull)":          "Ben More",
		"Ben More, by Crianlarich": "Ben More",
		"Sgurr na Banachdich [S]":  "Sgurr na Banachdich",
		"Schiehallion":             "Schiehallion",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

// fakeCoordStore backs builder tests without a database.
type fakeCoordStore struct {
	pool     []store.RouteName
	existing map[string]struct{}
	stored   []models.CoordEntry
}

func (f *fakeCoordStore) NamePool() ([]store.RouteName, error)     { return f.pool, nil }
func (f *fakeCoordStore) CoordNames() (map[string]struct{}, error) { return f.existing, nil }
func (f *fakeCoordStore) UpsertCoords(e []models.CoordEntry) error { f.stored = e; return nil }

func TestBuilder_OnlyMissingSkipsExisting(t *testing.T) {
	db := &fakeCoordStore{
		pool: []store.RouteName{
			{ID: 1, Name: "Ben Nevis"},
			{ID: 2, Name: "Schiehallion"},
		},
		existing: map[string]struct{}{"Ben Nevis": {}},
	}
	g := &fakeGeocoder{answers: map[string]*Point{
		"Schiehallion Munro, Scotland": {Lat: 56.6672, Lon: -4.1020},
	}}

	res, err := NewBuilder(db, g, testLogger()).Build(context.Background(), true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Attempted != 1 || res.Resolved != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(db.stored) != 1 || db.stored[0].Name != "Schiehallion" {
		t.Errorf("stored = %+v", db.stored)
	}
}

func TestBuilder_DiscardsOutOfBounds(t *testing.T) {
	db := &fakeCoordStore{pool: []store.RouteName{{ID: 1, Name: "Ben Misplaced"}}}
	g := &fakeGeocoder{answers: map[string]*Point{
		"Ben Misplaced Munro, Scotland": &perthAU,
	}}

	res, err := NewBuilder(db, g, testLogger()).Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Resolved != 0 {
		t.Errorf("out-of-bounds hit was stored: %+v", db.stored)
	}
}

func TestBuilder_SkipsFailedNames(t *testing.T) {
	db := &fakeCoordStore{pool: []store.RouteName{
		{ID: 1, Name: "Good Hill"},
		{ID: 2, Name: "Bad Hill"},
	}}
	g := &fakeGeocoder{
		answers: map[string]*Point{
			"Good Hill Munro, Scotland": {Lat: 57.0, Lon: -4.0},
		},
		errs: map[string]error{
			"Bad Hill Munro, Scotland": fmt.Errorf("geo: %w: timeout", apperr.ErrGeocoderUnavailable),
		},
	}

	res, err := NewBuilder(db, g, testLogger()).Build(context.Background(), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Resolved != 1 {
		t.Errorf("result = %+v, want the surviving name resolved", res)
	}
	if len(db.stored) != 1 || db.stored[0].Name != "Good Hill" {
		t.Errorf("stored = %+v, want only Good Hill", db.stored)
	}
}

type fakeCoordSource struct {
	entries []models.CoordEntry
}

func (f *fakeCoordSource) AllCoords() ([]models.CoordEntry, error) { return f.entries, nil }

func TestCoordCache_EmptyIsAnError(t *testing.T) {
	c := NewCoordCache(&fakeCoordSource{}, testLogger())
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := c.Snapshot(); !errors.Is(err, apperr.ErrCoordCacheEmpty) {
		t.Errorf("err = %v, want ErrCoordCacheEmpty", err)
	}
}

func TestCoordCache_ReloadReplaces(t *testing.T) {
	src := &fakeCoordSource{entries: []models.CoordEntry{{Name: "A", Lat: 57, Lon: -4}}}
	c := NewCoordCache(src, testLogger())
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	snap, err := c.Snapshot()
	if err != nil || len(snap) != 1 {
		t.Fatalf("snapshot = %v, %v", snap, err)
	}

	src.entries = []models.CoordEntry{
		{Name: "A", Lat: 57, Lon: -4},
		{Name: "B", Lat: 56, Lon: -5},
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

// fakeIndex satisfies store.RouteIndex for ranker tests.
type fakeIndex struct {
	routes  map[int64]*models.Route
	tags    map[int64][]string
	metrics bool

	failID int64
	getErr error
}

func (f *fakeIndex) TextIndexAvailable() bool { return false }
func (f *fakeIndex) HasRouteMetrics() bool    { return f.metrics }
func (f *fakeIndex) SearchMatch(string, store.Filters, int) ([]store.RouteHit, error) {
	return nil, nil
}
func (f *fakeIndex) SearchFuzzy([]string, store.Filters, int) ([]store.RouteHit, error) {
	return nil, nil
}
func (f *fakeIndex) SearchTags(store.Filters, int) ([]store.RouteHit, error) { return nil, nil }

func (f *fakeIndex) TagsForRoutes(ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	for _, id := range ids {
		out[id] = f.tags[id]
	}
	return out, nil
}

func (f *fakeIndex) AllCoords() ([]models.CoordEntry, error) { return nil, nil }

func (f *fakeIndex) NamePool() ([]store.RouteName, error) {
	var out []store.RouteName
	for id, r := range f.routes {
		out = append(out, store.RouteName{ID: id, Name: r.Name})
	}
	return out, nil
}

func (f *fakeIndex) GetRoute(id int64) (*models.Route, error) {
	if f.getErr != nil && id == f.failID {
		return nil, f.getErr
	}
	r, ok := f.routes[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return r, nil
}

func rankerFixture(metrics bool) (*Ranker, *fakeIndex) {
	idx := &fakeIndex{
		metrics: metrics,
		routes: map[int64]*models.Route{
			1: {ID: 1, Name: "Close Hill"},
			2: {ID: 2, Name: "Far Hill"},
			3: {ID: 3, Name: "Equal A"},
			4: {ID: 4, Name: "Equal B"},
		},
		tags: map[int64][]string{
			1: {"ridge"},
			2: {"ridge", "bus"},
			3: {"ridge"},
			4: {"ridge", "bus"},
		},
	}
	src := &fakeCoordSource{entries: []models.CoordEntry{
		{Name: "Close Hill", Lat: 57.05, Lon: -4.0},
		{Name: "Far Hill", Lat: 57.9, Lon: -4.0},
		{Name: "Equal A", Lat: 57.2, Lon: -4.0},
		{Name: "Equal B", Lat: 57.2, Lon: -4.0},
	}}
	cache := NewCoordCache(src, testLogger())
	_ = cache.Reload()
	g := &fakeGeocoder{answers: map[string]*Point{
		"Aviemore, Scotland": {Lat: 57.0, Lon: -4.0},
	}}
	return NewRanker(idx, cache, NewPlaceResolver(g)), idx
}

func TestNearest_OrderedByDistance(t *testing.T) {
	r, _ := rankerFixture(true)
	resp, err := r.Nearest(context.Background(), NearestRequest{Place: "Aviemore"})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(resp.Results) != 4 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Name != "Close Hill" {
		t.Errorf("first = %q, want Close Hill", resp.Results[0].Name)
	}
	if resp.Results[len(resp.Results)-1].Name != "Far Hill" {
		t.Errorf("last = %q, want Far Hill", resp.Results[len(resp.Results)-1].Name)
	}
	if resp.Results[0].DistanceKM == nil || *resp.Results[0].DistanceKM != resp.Results[0].Rank {
		t.Errorf("rank should equal distance km: %+v", resp.Results[0])
	}
	if resp.ResolvedQuery != "Aviemore, Scotland" {
		t.Errorf("resolved query = %q", resp.ResolvedQuery)
	}
}

func TestNearest_StorageErrorAborts(t *testing.T) {
	r, idx := rankerFixture(true)
	idx.failID = 1
	idx.getErr = fmt.Errorf("store: get route: disk I/O error")

	if _, err := r.Nearest(context.Background(), NearestRequest{Place: "Aviemore"}); err == nil {
		t.Fatal("expected a storage failure to abort the request")
	}
}

func TestNearest_MissingRouteSkipped(t *testing.T) {
	r, idx := rankerFixture(true)
	idx.failID = 1
	idx.getErr = apperr.ErrNotFound

	resp, err := r.Nearest(context.Background(), NearestRequest{Place: "Aviemore"})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	// A coordinate whose route has vanished drops out quietly.
	if len(resp.Results) != 3 {
		t.Errorf("results = %+v, want 3", resp.Results)
	}
}

func TestNearest_EquidistantTagTieBreak(t *testing.T) {
	r, _ := rankerFixture(true)
	resp, err := r.Nearest(context.Background(), NearestRequest{
		Place:       "Aviemore",
		IncludeTags: []string{"bus"},
	})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	// Include tags are hard AND filters, so only bus routes survive.
	for _, res := range resp.Results {
		found := false
		for _, tg := range res.Tags {
			if tg == "bus" {
				found = true
			}
		}
		if !found {
			t.Errorf("route %q lacks required tag: %+v", res.Name, res.Tags)
		}
	}
}

func TestNearest_NameTieBreakDeterministic(t *testing.T) {
	r, _ := rankerFixture(true)
	resp, err := r.Nearest(context.Background(), NearestRequest{Place: "Aviemore"})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	// Equal A and Equal B share a coordinate; same tag-match count means
	// name order decides.
	var equals []string
	for _, res := range resp.Results {
		if res.Name == "Equal A" || res.Name == "Equal B" {
			equals = append(equals, res.Name)
		}
	}
	if len(equals) != 2 || equals[0] != "Equal A" {
		t.Errorf("equidistant order = %v, want [Equal A Equal B]", equals)
	}
}

func TestNearest_MissingAttributeNeverRejected(t *testing.T) {
	r, idx := rankerFixture(true)
	dist := 12.0
	idx.routes[1].Distance = &dist

	maxKM := 10.0
	resp, err := r.Nearest(context.Background(), NearestRequest{
		Place:         "Aviemore",
		DistanceMaxKM: &maxKM,
	})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	for _, res := range resp.Results {
		if res.Name == "Close Hill" {
			t.Error("route over the distance ceiling survived")
		}
	}
	// The other routes have no stored distance and must all remain.
	if len(resp.Results) != 3 {
		t.Errorf("results = %+v, want 3 surviving routes", resp.Results)
	}
}

func TestNearest_MetricsFiltersIgnoredWithoutColumns(t *testing.T) {
	r, idx := rankerFixture(false)
	dist := 12.0
	idx.routes[1].Distance = &dist

	maxKM := 10.0
	resp, err := r.Nearest(context.Background(), NearestRequest{
		Place:         "Aviemore",
		DistanceMaxKM: &maxKM,
	})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(resp.Results) != 4 {
		t.Errorf("results = %d, want 4 when the schema has no metrics", len(resp.Results))
	}
}

func TestNearest_EmptyCache(t *testing.T) {
	idx := &fakeIndex{routes: map[int64]*models.Route{}}
	cache := NewCoordCache(&fakeCoordSource{}, testLogger())
	_ = cache.Reload()
	g := &fakeGeocoder{answers: map[string]*Point{
		"Aviemore, Scotland": {Lat: 57.0, Lon: -4.0},
	}}
	r := NewRanker(idx, cache, NewPlaceResolver(g))

	_, err := r.Nearest(context.Background(), NearestRequest{Place: "Aviemore"})
	if !errors.Is(err, apperr.ErrCoordCacheEmpty) {
		t.Errorf("err = %v, want ErrCoordCacheEmpty", err)
	}
}
