// Package feedcache caches station feed bodies in Redis and invalidates
// them when upstream data changes. Each cached feed registers its H3 cell
// footprint, so an invalidation event with a bounding box only evicts the
// feeds whose stations actually fall inside the affected area.
package feedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/core/observability"
	"github.com/oceanportal/workbench/internal/redisstore"
)

type Cache struct {
	cli        *redisstore.Client
	logger     *slog.Logger
	cellRes    int
	ttlDefault time.Duration
	ttlByType  map[string]time.Duration
}

// footprint is the registry entry for one layer's cached feeds.
type footprint struct {
	Cells []string `json:"cells"`
	Keys  []string `json:"keys"`
}

func New(cli *redisstore.Client, logger *slog.Logger, cellRes int, ttlDefault time.Duration, ttlByType map[string]time.Duration) *Cache {
	if cellRes <= 0 {
		cellRes = 5
	}
	if ttlDefault <= 0 {
		ttlDefault = 5 * time.Minute
	}
	return &Cache{
		cli:        cli,
		logger:     logger,
		cellRes:    cellRes,
		ttlDefault: ttlDefault,
		ttlByType:  ttlByType,
	}
}

// Get returns the cached feed body, or nil on a miss.
func (c *Cache) Get(ctx context.Context, d model.LayerDescriptor) ([]byte, error) {
	raw, err := c.cli.Get(ctx, FeedKey(d.ID, d.URL, d.SelectedFeatureTypes))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		observability.IncFeedCacheMiss()
		return nil, nil
	}
	observability.IncFeedCacheHit()
	return raw, nil
}

// Put stores a feed body and registers the layer's station footprint.
func (c *Cache) Put(ctx context.Context, d model.LayerDescriptor, body []byte, points []model.LatLng) error {
	key := FeedKey(d.ID, d.URL, d.SelectedFeatureTypes)
	ttl := c.ttlFor(d.RawType)
	if err := c.cli.Set(ctx, key, body, ttl); err != nil {
		return err
	}

	cells, err := CellsForPoints(points, c.cellRes)
	if err != nil {
		return fmt.Errorf("feedcache: footprint for %s: %w", d.ID, err)
	}
	fp := footprint{Cells: cells, Keys: []string{key}}
	if prev, ok, _ := c.loadFootprint(ctx, d.ID); ok {
		fp.Keys = mergeKeys(prev.Keys, key)
	}
	payload, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("feedcache: encode footprint: %w", err)
	}
	// Footprints outlive the bodies slightly so late invalidations still
	// find the registry entry.
	return c.cli.Set(ctx, footprintKey(d.ID), payload, ttl+time.Minute)
}

// InvalidateLayer drops every cached feed for one layer.
func (c *Cache) InvalidateLayer(ctx context.Context, layerID string) error {
	fp, ok, err := c.loadFootprint(ctx, layerID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.cli.Del(ctx, append(fp.Keys, footprintKey(layerID))...)
}

// InvalidateBounds evicts the feeds whose footprints intersect the affected
// area. Returns the number of layers evicted.
func (c *Cache) InvalidateBounds(ctx context.Context, b model.Bounds) (int, error) {
	affected, err := CellsForBounds(b, c.cellRes)
	if err != nil {
		return 0, err
	}
	regKeys, err := c.cli.Keys(ctx, footprintPattern)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, rk := range regKeys {
		layerID := strings.TrimPrefix(rk, "feedcells:")
		fp, ok, err := c.loadFootprint(ctx, layerID)
		if err != nil || !ok {
			continue
		}
		if !intersects(fp.Cells, affected) {
			continue
		}
		if err := c.cli.Del(ctx, append(fp.Keys, rk)...); err != nil {
			c.logger.Warn("feed eviction failed", "layer_id", layerID, "err", err)
			continue
		}
		evicted++
	}
	return evicted, nil
}

func (c *Cache) ttlFor(rawType string) time.Duration {
	if ttl, ok := c.ttlByType[strings.ToLower(rawType)]; ok {
		return ttl
	}
	return c.ttlDefault
}

func (c *Cache) loadFootprint(ctx context.Context, layerID string) (footprint, bool, error) {
	raw, err := c.cli.Get(ctx, footprintKey(layerID))
	if err != nil || raw == nil {
		return footprint{}, false, err
	}
	var fp footprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return footprint{}, false, fmt.Errorf("feedcache: decode footprint: %w", err)
	}
	return fp, true, nil
}

func mergeKeys(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
