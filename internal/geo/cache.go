package geo

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/munrobagger/cairn/internal/apperr"
	"github.com/munrobagger/cairn/internal/models"
)

// CoordSource supplies the coordinate rows the cache mirrors.
type CoordSource interface {
	AllCoords() ([]models.CoordEntry, error)
}

// RouteCoord is a cached coordinate with the owning route name.
type RouteCoord struct {
	Name  string
	Point Point
}

// CoordCache is an in-memory mirror of the route_coords table. Nearest
// lookups scan the whole set per request, so reads take a snapshot under a
// read lock and never touch the database.
type CoordCache struct {
	source CoordSource
	logger *slog.Logger

	mu      sync.RWMutex
	entries []RouteCoord
}

// NewCoordCache creates an empty cache over source. Call Reload before
// serving, or let Watch populate it.
func NewCoordCache(source CoordSource, logger *slog.Logger) *CoordCache {
	return &CoordCache{source: source, logger: logger}
}

// Reload replaces the cache contents from the source.
func (c *CoordCache) Reload() error {
	rows, err := c.source.AllCoords()
	if err != nil {
		return fmt.Errorf("geo: reload coords: %w", err)
	}
	entries := make([]RouteCoord, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, RouteCoord{
			Name:  r.Name,
			Point: Point{Lat: r.Lat, Lon: r.Lon},
		})
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Snapshot returns the current entries, loading from the source first if
// the cache has never been filled. A cache that is still empty after the
// load is an error so callers can distinguish "no coordinates built yet"
// from "no routes nearby".
func (c *CoordCache) Snapshot() ([]RouteCoord, error) {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	if n == 0 {
		if err := c.Reload(); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return nil, apperr.ErrCoordCacheEmpty
	}
	out := make([]RouteCoord, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

// Len reports the number of cached coordinates.
func (c *CoordCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watch watches the database file and reloads the cache after writes, so a
// coordinate build run by a separate process becomes visible without a
// restart. Bursts of WAL activity are debounced into a single reload.
func (c *CoordCache) Watch(ctx context.Context, dbPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("geo: watcher: %w", err)
	}
	defer w.Close()

	// SQLite in WAL mode touches sibling files, so watch the directory and
	// filter on the base name prefix.
	dir := filepath.Dir(dbPath)
	base := filepath.Base(dbPath)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("geo: watch %s: %w", dir, err)
	}

	c.logger.Info("coord cache: watcher started", slog.String("db", dbPath))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(500 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(500 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			c.logger.Info("coord cache: watcher stopped")
			return nil

		case <-reloadCh:
			if err := c.Reload(); err != nil {
				c.logger.Warn("coord cache: reload failed", slog.String("error", err.Error()))
				continue
			}
			c.logger.Debug("coord cache: reloaded", slog.Int("entries", c.Len()))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			scheduleReload()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("coord cache: watch error", slog.String("error", werr.Error()))
		}
	}
}
