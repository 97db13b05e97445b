package api

import (
	"github.com/munrobagger/cairn/internal/models"
)

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query       string   `json:"query" example:"airy ridge scramble"`
	IncludeTags []string `json:"include_tags" example:"ridge,bus"`
	ExcludeTags []string `json:"exclude_tags" example:"boggy"`
	BogMax      *int     `json:"bog_max" example:"3"`
	GradeMax    any      `json:"grade_max" swaggertype:"string" example:"moderate"`

	DistanceMinKM *float64 `json:"distance_min_km" example:"10"`
	DistanceMaxKM *float64 `json:"distance_max_km" example:"20"`
	TimeMinH      *float64 `json:"time_min_h" example:"4"`
	TimeMaxH      *float64 `json:"time_max_h" example:"8"`

	Limit int `json:"limit" example:"12"`
}

// NearestRequest is the request body for POST /nearest.
type NearestRequest struct {
	Place       string   `json:"place" example:"Aviemore" validate:"required"`
	IncludeTags []string `json:"include_tags" example:"ridge"`
	ExcludeTags []string `json:"exclude_tags" example:"boggy"`
	BogMax      *int     `json:"bog_max" example:"3"`
	GradeMax    any      `json:"grade_max" swaggertype:"string" example:"hard"`

	DistanceMinKM *float64 `json:"distance_min_km" example:"10"`
	DistanceMaxKM *float64 `json:"distance_max_km" example:"20"`
	TimeMinH      *float64 `json:"time_min_h" example:"4"`
	TimeMaxH      *float64 `json:"time_max_h" example:"8"`

	Limit int `json:"limit" example:"10"`
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message string `json:"message" example:"a ridge I can reach by train" validate:"required"`
	Limit   int    `json:"limit" example:"8"`
}

// MunroListResponse wraps the route catalogue listing.
type MunroListResponse struct {
	Munros []models.Route `json:"munros" validate:"required"`
	Total  int            `json:"total" example:"282" validate:"required"`
}

// TagListResponse wraps tag counts for filter UIs.
type TagListResponse struct {
	Tags []models.TagCount `json:"tags" validate:"required"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	OK bool `json:"ok" example:"true" validate:"required"`
}
