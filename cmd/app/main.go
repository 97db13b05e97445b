package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/munrobagger/cairn/internal"
	"github.com/munrobagger/cairn/internal/chat"
	"github.com/munrobagger/cairn/internal/geo"
	"github.com/munrobagger/cairn/internal/mcpserver"
	"github.com/munrobagger/cairn/internal/search"
	"github.com/munrobagger/cairn/internal/seed"
	"github.com/munrobagger/cairn/internal/store"
	pkgconfig "github.com/munrobagger/cairn/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// No config file is fine for local use; defaults plus env vars apply.
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid default config: %w", err)
		}
	} else if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

func newLogger(cfg *internal.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

func newGeocoder(cfg *internal.Config) geo.Geocoder {
	return geo.NewNominatimClient(geo.NominatimConfig{
		Endpoint:    cfg.Geocoder.Endpoint,
		UserAgent:   cfg.Geocoder.UserAgent,
		MinInterval: cfg.Geocoder.MinInterval,
	})
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	coordCache := geo.NewCoordCache(db, logger)
	ranker := geo.NewRanker(db, coordCache, geo.NewPlaceResolver(newGeocoder(cfg)))

	return mcpserver.New(db, search.NewService(db), ranker).ServeStdio()
}

func seedRoutes(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	res, err := seed.File(db, cmd.String("file"), logger)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("seeding complete",
		slog.Int("total", res.Total),
		slog.Int("seeded", res.Seeded))
	return nil
}

func tagRoutes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if !cfg.LLM.Configured() {
		return fmt.Errorf("tagging needs an LLM API key (set OPENAI_API_KEY or llm.api_key)")
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	ids, err := parseIDs(cmd.String("ids"))
	if err != nil {
		return err
	}

	llm := chat.NewOpenAIClient(chat.OpenAIConfig{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	})
	res, err := chat.NewTagger(db, llm, logger).Run(ctx, ids)
	if err != nil {
		return fmt.Errorf("tag: %w", err)
	}
	logger.Info("tagging complete",
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed))
	return nil
}

func buildCoords(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	builder := geo.NewBuilder(db, newGeocoder(cfg), logger)
	res, err := builder.Build(ctx, cmd.Bool("missing-only"))
	if err != nil {
		return fmt.Errorf("coords build: %w", err)
	}
	logger.Info("coordinate build complete",
		slog.Int("attempted", res.Attempted),
		slog.Int("resolved", res.Resolved),
		slog.Int("skipped", res.Skipped))
	return nil
}

func nearestCoords(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	place := cmd.String("place")
	if place == "" {
		return fmt.Errorf("--place is required")
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	ranker := geo.NewRanker(db, geo.NewCoordCache(db, logger), geo.NewPlaceResolver(newGeocoder(cfg)))
	resp, err := ranker.Nearest(ctx, geo.NearestRequest{
		Place: place,
		Limit: int(cmd.Int("k")),
	})
	if err != nil {
		return fmt.Errorf("nearest: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad route id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "cairn",
		Usage:  "Munro route search service: tag-filtered full-text search, nearest-route ranking, and an LLM concierge",
		Action: serve,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server",
				Action: serve,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the route search tools over MCP stdio",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "seed",
				Usage:  "Load routes from a JSON export into the database",
				Action: seedRoutes,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Path to the JSON route export",
						Value:   "munro_descriptions.json",
					},
				},
			},
			{
				Name:   "tag",
				Usage:  "Tag routes against the fixed ontology with the LLM",
				Action: tagRoutes,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "ids",
						Usage: "Comma-separated route ids (default: all routes)",
					},
				},
			},
			{
				Name:  "coords",
				Usage: "Maintain and query the route coordinate cache",
				Commands: []*cli.Command{
					{
						Name:   "build",
						Usage:  "Geocode route names into the coordinate cache",
						Action: buildCoords,
						Flags: []cli.Flag{
							configFlag,
							&cli.BoolFlag{
								Name:  "missing-only",
								Usage: "Only geocode routes without cached coordinates",
								Value: true,
							},
						},
					},
					{
						Name:   "nearest",
						Usage:  "Print the routes nearest to a place",
						Action: nearestCoords,
						Flags: []cli.Flag{
							configFlag,
							&cli.StringFlag{
								Name:  "place",
								Usage: "Place name to resolve",
							},
							&cli.IntFlag{
								Name:  "k",
								Usage: "Number of routes to return",
								Value: 10,
							},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
