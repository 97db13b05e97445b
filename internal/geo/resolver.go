package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/munrobagger/cairn/internal/apperr"
)

// scotlandBounds gates geocoder answers: a hit outside this box is a
// mis-resolution (there is a Perth in Australia) and must be discarded.
var scotlandBounds = geom.NewBounds(geom.XY).Set(-8.5, 54.5, -0.5, 60.9)

// InScotland reports whether a point falls inside the Scotland bounding box.
func InScotland(p Point) bool {
	return scotlandBounds.OverlapsPoint(geom.XY, geom.Coord{p.Lon, p.Lat})
}

// placeAliases maps colloquial names hikers actually type to forms the
// geocoder resolves reliably.
var placeAliases = map[string]string{
	"glencoe":        "Glencoe",
	"glen coe":       "Glencoe",
	"fort bill":      "Fort William",
	"the cairngorms": "Cairngorms",
	"skye":           "Isle of Skye",
	"torridon":       "Torridon",
	"arrochar":       "Arrochar",
}

// PlaceResolver turns a user-supplied place name into a coordinate inside
// Scotland, trying progressively less qualified query variants.
type PlaceResolver struct {
	geocoder Geocoder
}

// NewPlaceResolver creates a resolver over a geocoder.
func NewPlaceResolver(g Geocoder) *PlaceResolver {
	return &PlaceResolver{geocoder: g}
}

// Resolve geocodes place and returns the coordinate together with the
// query variant that won. It returns apperr.ErrLocationNotFound when every
// variant either misses or lands outside Scotland, and the geocoder's own
// error when the service itself is unreachable.
func (r *PlaceResolver) Resolve(ctx context.Context, place string) (*Point, string, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, "", fmt.Errorf("geo: %w: empty place", apperr.ErrLocationNotFound)
	}
	if alias, ok := placeAliases[strings.ToLower(place)]; ok {
		place = alias
	}

	variants := dedupe([]string{
		place + ", Scotland",
		place,
	})

	var unavailable error
	for _, v := range variants {
		p, err := r.geocoder.Geocode(ctx, v, "gb")
		if err != nil {
			if errors.Is(err, apperr.ErrGeocoderUnavailable) {
				unavailable = err
				continue
			}
			return nil, "", err
		}
		if p == nil {
			continue
		}
		if !InScotland(*p) {
			continue
		}
		return p, v, nil
	}
	if unavailable != nil {
		return nil, "", unavailable
	}
	return nil, "", fmt.Errorf("geo: %w: %q", apperr.ErrLocationNotFound, place)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
