// Package geo resolves place names to coordinates, maintains the route
// coordinate cache, and ranks routes by great-circle distance from a
// resolved point.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/munrobagger/cairn/internal/apperr"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Geocoder resolves a free-text query to at most one coordinate.
// A nil result with nil error means "no match", which callers must treat
// differently from transport errors.
type Geocoder interface {
	Geocode(ctx context.Context, query, countryHint string) (*Point, error)
}

// NominatimClient is a rate-limited Nominatim geocoder. Nominatim's usage
// policy requires at most one request per second and an identifying
// User-Agent, so the limiter is not optional.
type NominatimClient struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryWait  time.Duration
}

// NominatimConfig configures a NominatimClient.
type NominatimConfig struct {
	Endpoint    string
	UserAgent   string
	MinInterval time.Duration
	MaxRetries  int
	RetryWait   time.Duration
	Timeout     time.Duration
}

// NewNominatimClient creates a client with conservative defaults matching
// the public Nominatim instance's policy.
func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://nominatim.openstreetmap.org/search"
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NominatimClient{
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
	}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode issues a rate-limited search request with bounded retry on
// transport errors. "No match" is a nil Point, not an error.
func (c *NominatimClient) Geocode(ctx context.Context, query, countryHint string) (*Point, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("geo: geocode cancelled: %w", ctx.Err())
			case <-time.After(c.retryWait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("geo: rate limit wait: %w", err)
		}
		p, err := c.geocodeOnce(ctx, query, countryHint)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("geo: %w: %v", apperr.ErrGeocoderUnavailable, lastErr)
}

func (c *NominatimClient) geocodeOnce(ctx context.Context, query, countryHint string) (*Point, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	if countryHint != "" {
		params.Set("countrycodes", countryHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geo: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo: geocoder returned status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("geo: decode response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geo: parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geo: parse lon: %w", err)
	}
	return &Point{Lat: lat, Lon: lon}, nil
}
