// Package models defines the domain types for Cairn.
package models

import "time"

// Route represents a single Munro walking route in the dataset.
//
// Distance (km) and Time (hours) are pointers because older source data
// omits them; a missing value is never treated as zero.
type Route struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Summary         string   `json:"summary"`
	Description     string   `json:"description"`
	Terrain         string   `json:"terrain,omitempty"`
	PublicTransport string   `json:"public_transport,omitempty"`
	Start           string   `json:"start,omitempty"`
	Distance        *float64 `json:"distance,omitempty"`
	Time            *float64 `json:"time,omitempty"`
	Grade           *int     `json:"grade,omitempty"`
	Bog             *int     `json:"bog,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// SearchResult is one hit from the retrieval cascade or the proximity ranker.
//
// Rank is 0.0 for text-index hits, 1000.0 for fuzzy hits, 2000.0 for tag-only
// hits, or the distance in km in location mode. Lower is always better.
type SearchResult struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Snippet string   `json:"snippet"`
	Tags    []string `json:"tags"`
	Rank    float64  `json:"rank"`

	// Location-mode extras.
	DistanceKM    *float64 `json:"distance_km,omitempty"`
	RouteDistance *float64 `json:"route_distance,omitempty"`
	RouteTime     *float64 `json:"route_time,omitempty"`
}

// CoordEntry is a row in the geocoded coordinate cache. It is keyed by route
// name because the cache is built by an independent batch job that only
// knows names.
type CoordEntry struct {
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagCount pairs a tag with its usage count across the dataset.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
