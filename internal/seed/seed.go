// Package seed loads route records from a JSON export into the store.
package seed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/munrobagger/cairn/internal/models"
)

// record mirrors the fields of the scraped route export. Tags and the
// long-form fields are optional; older exports carry only the basics.
type record struct {
	Name            string   `json:"name"`
	Summary         string   `json:"summary"`
	Description     string   `json:"description"`
	Terrain         string   `json:"terrain"`
	PublicTransport string   `json:"public_transport"`
	Start           string   `json:"start"`
	Distance        *float64 `json:"distance"`
	Time            *float64 `json:"time"`
	Grade           *int     `json:"grade"`
	Bog             *int     `json:"bog"`
	Tags            []string `json:"tags"`
}

// Store is the subset of the route store the seeder needs.
type Store interface {
	InsertRoute(r models.Route) (int64, error)
	ReplaceTags(routeID int64, tags []string) error
	UpsertTextIndex(id int64, name, summary, description, keywords string) error
	OptimizeTextIndex() error
}

// Result summarizes a seeding run.
type Result struct {
	Total  int
	Seeded int
}

// File seeds routes from a JSON array at path. Records upsert on the
// normalized name, so re-running against a newer export is safe.
func File(db Store, path string, logger *slog.Logger) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}

	res := &Result{Total: len(records)}
	for _, rec := range records {
		if rec.Name == "" {
			logger.Warn("skipping record with empty name")
			continue
		}
		id, err := db.InsertRoute(models.Route{
			Name:            rec.Name,
			Summary:         rec.Summary,
			Description:     rec.Description,
			Terrain:         rec.Terrain,
			PublicTransport: rec.PublicTransport,
			Start:           rec.Start,
			Distance:        rec.Distance,
			Time:            rec.Time,
			Grade:           rec.Grade,
			Bog:             rec.Bog,
		})
		if err != nil {
			return res, err
		}
		if len(rec.Tags) > 0 {
			if err := db.ReplaceTags(id, rec.Tags); err != nil {
				return res, err
			}
		}
		if err := db.UpsertTextIndex(id, rec.Name, rec.Summary, rec.Description, ""); err != nil {
			return res, err
		}
		res.Seeded++
	}

	if err := db.OptimizeTextIndex(); err != nil {
		logger.Warn("text index optimize failed", slog.String("error", err.Error()))
	}
	return res, nil
}
