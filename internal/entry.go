// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/munrobagger/cairn/internal/api"
	"github.com/munrobagger/cairn/internal/chat"
	"github.com/munrobagger/cairn/internal/geo"
	"github.com/munrobagger/cairn/internal/search"
	"github.com/munrobagger/cairn/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("llm_configured", cfg.LLM.Configured()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	if !db.TextIndexAvailable() {
		logger.Warn("built without the sqlite_fts5 tag; text-match search pass is disabled")
	}
	if !db.HasRouteMetrics() {
		logger.Warn("schema carries no distance/time columns; numeric route filters are disabled")
	}

	// Geocoding stack.
	geocoder := app.geocoder
	if geocoder == nil {
		geocoder = geo.NewNominatimClient(geo.NominatimConfig{
			Endpoint:    cfg.Geocoder.Endpoint,
			UserAgent:   cfg.Geocoder.UserAgent,
			MinInterval: cfg.Geocoder.MinInterval,
		})
	}
	resolver := geo.NewPlaceResolver(geocoder)
	coordCache := geo.NewCoordCache(db, logger)
	if err := coordCache.Reload(); err != nil {
		logger.Warn("initial coord cache load failed", slog.String("error", err.Error()))
	} else {
		logger.Info("coord cache loaded", slog.Int("entries", coordCache.Len()))
	}

	// Services.
	searchSvc := search.NewService(db)
	ranker := geo.NewRanker(db, coordCache, resolver)

	llm := app.llm
	if llm == nil && cfg.LLM.Configured() {
		llm = chat.NewOpenAIClient(chat.OpenAIConfig{
			Endpoint: cfg.LLM.Endpoint,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
		})
	}
	chatSvc := chat.NewOrchestrator(llm, searchSvc, db, logger)

	// Build API handler and router.
	handler := api.NewHandler(db, searchSvc, ranker, chatSvc)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the database file so coordinate builds from a separate process
	// show up without a restart.
	g.Go(func() error {
		if err := coordCache.Watch(gCtx, cfg.SQLite.Path); err != nil {
			logger.Warn("coord cache watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
