package location

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/shared/jsonstore"
)

// Cache maps candidate location text to resolved points. It is shared by
// every pipeline run in the process and persisted as a JSON object.
//
// Entries are never removed. Reload merges entries written by other
// processes, but there is no cross-process lock: two processes saving at the
// same time can lose each other's new entries (last writer wins on the whole
// file).
type Cache struct {
	file   *jsonstore.File[map[string]domain.LocationPoint]
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]domain.LocationPoint
}

// OpenCache loads the cache file at path, creating an empty one if needed
func OpenCache(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		file:    jsonstore.New(path, map[string]domain.LocationPoint{}, logger),
		logger:  logger,
		entries: map[string]domain.LocationPoint{},
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload reads the file and adds every entry not already held in memory
func (c *Cache) Reload() error {
	disk, err := c.file.Load()
	if err != nil {
		return fmt.Errorf("failed to load location cache: %w", err)
	}

	c.mu.Lock()
	added := 0
	for key, point := range disk {
		if _, ok := c.entries[key]; !ok {
			c.entries[key] = point
			added++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.logger.Debug("Location cache reloaded",
		slog.String("path", c.file.Path()),
		slog.Int("added", added),
		slog.Int("entries", size),
	)
	return nil
}

// Save writes the current entries to disk
func (c *Cache) Save() error {
	if err := c.file.Save(c.Snapshot()); err != nil {
		return fmt.Errorf("failed to save location cache: %w", err)
	}
	return nil
}

// Get returns the cached point for a normalized candidate
func (c *Cache) Get(key string) (domain.LocationPoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	point, ok := c.entries[key]
	return point, ok
}

// Put stores a resolved point under its candidate key
func (c *Cache) Put(key string, point domain.LocationPoint) {
	c.mu.Lock()
	c.entries[key] = point
	c.mu.Unlock()
}

// Len returns the number of cached candidates
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the entries
func (c *Cache) Snapshot() map[string]domain.LocationPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}

// StartAutoSave persists the cache every interval until ctx is done
func (c *Cache) StartAutoSave(ctx context.Context, interval time.Duration) <-chan struct{} {
	return c.file.StartAutoSave(ctx, interval, c.Snapshot)
}
