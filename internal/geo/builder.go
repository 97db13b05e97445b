package geo

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/munrobagger/cairn/internal/models"
	"github.com/munrobagger/cairn/internal/store"
)

// builderWorkers bounds concurrent geocoding. The client's rate limiter is
// shared, so more workers only deepen the queue.
const builderWorkers = 3

type coordStore interface {
	NamePool() ([]store.RouteName, error)
	CoordNames() (map[string]struct{}, error)
	UpsertCoords([]models.CoordEntry) error
}

// Builder geocodes route names into the coordinate cache table.
type Builder struct {
	db       coordStore
	geocoder Geocoder
	logger   *slog.Logger
}

// NewBuilder creates a coordinate builder.
func NewBuilder(db coordStore, g Geocoder, logger *slog.Logger) *Builder {
	return &Builder{db: db, geocoder: g, logger: logger}
}

// BuildResult summarizes a build run.
type BuildResult struct {
	Attempted int
	Resolved  int
	Skipped   int
}

// Build geocodes every route name, or only names without a stored
// coordinate when onlyMissing is set, and writes the batch in one upsert.
func (b *Builder) Build(ctx context.Context, onlyMissing bool) (*BuildResult, error) {
	pool, err := b.db.NamePool()
	if err != nil {
		return nil, fmt.Errorf("geo: name pool: %w", err)
	}

	var have map[string]struct{}
	if onlyMissing {
		have, err = b.db.CoordNames()
		if err != nil {
			return nil, fmt.Errorf("geo: coord names: %w", err)
		}
	}

	res := &BuildResult{}
	var names []string
	for _, r := range pool {
		if _, ok := have[r.Name]; ok {
			res.Skipped++
			continue
		}
		names = append(names, r.Name)
	}
	res.Attempted = len(names)

	var mu sync.Mutex
	var entries []models.CoordEntry

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(builderWorkers)
	for _, name := range names {
		g.Go(func() error {
			p, gerr := b.geocodePeak(gctx, name)
			if gerr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// One stubborn name must not sink the whole batch.
				b.logger.Warn("coords: geocode failed",
					slog.String("name", name),
					slog.String("error", gerr.Error()))
				return nil
			}
			if p == nil {
				b.logger.Warn("coords: no match", slog.String("name", name))
				return nil
			}
			mu.Lock()
			entries = append(entries, models.CoordEntry{
				Name:   name,
				Lat:    p.Lat,
				Lon:    p.Lon,
				Source: "nominatim",
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := b.db.UpsertCoords(entries); err != nil {
		return nil, fmt.Errorf("geo: store coords: %w", err)
	}
	res.Resolved = len(entries)
	b.logger.Info("coords: build finished",
		slog.Int("attempted", res.Attempted),
		slog.Int("resolved", res.Resolved),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// geocodePeak tries progressively less specific query variants for a route
// name, accepting the first in-bounds hit.
func (b *Builder) geocodePeak(ctx context.Context, name string) (*Point, error) {
	clean := sanitizeName(name)
	variants := dedupe([]string{
		clean + " Munro, Scotland",
		clean + " peak, Scotland",
		clean + ", Scotland",
	})
	for _, v := range variants {
		p, err := b.geocoder.Geocode(ctx, v, "gb")
		if err != nil {
			return nil, err
		}
		if p == nil || !InScotland(*p) {
			continue
		}
		return p, nil
	}
	return nil, nil
}

var bracketed = regexp.MustCompile(`\s*[\(\[][^)\]]*[\)\]]`)

// sanitizeName strips qualifiers route names carry that confuse the
// geocoder: bracketed notes and trailing comma clauses like
// "Ben More, by Crianlarich".
func sanitizeName(name string) string {
	name = bracketed.ReplaceAllString(name, "")
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
