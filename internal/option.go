package internal

import (
	"github.com/munrobagger/cairn/internal/chat"
	"github.com/munrobagger/cairn/internal/geo"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	geocoder geo.Geocoder
	llm      chat.Completer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithGeocoder overrides the Nominatim client, mainly for tests.
func WithGeocoder(g geo.Geocoder) Option {
	return func(a *application) {
		a.geocoder = g
	}
}

// WithCompleter overrides the LLM client, mainly for tests.
func WithCompleter(c chat.Completer) Option {
	return func(a *application) {
		a.llm = c
	}
}
