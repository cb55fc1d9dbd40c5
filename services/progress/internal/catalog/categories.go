package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CategorySource provides the media-to-category mapping.
type CategorySource interface {
	ListCategories(ctx context.Context) (map[string]string, error)
}

// CategoryCache is an explicitly-scoped lookup of media id to category slug,
// built once from catalog data and injected where category backfill is
// wanted. Until Init succeeds it reports not ready and lookups return "";
// a cold cache is never an error.
type CategoryCache struct {
	source CategorySource
	log    *zap.Logger

	mu      sync.RWMutex
	byMedia map[string]string
	ready   bool
}

func NewCategoryCache(source CategorySource, log *zap.Logger) *CategoryCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &CategoryCache{source: source, log: log}
}

// Init loads the category mapping. Call again to refresh; a failed refresh
// keeps the previous mapping and readiness.
func (c *CategoryCache) Init(ctx context.Context) error {
	byMedia, err := c.source.ListCategories(ctx)
	if err != nil {
		c.log.Warn("category cache init failed", zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.byMedia = byMedia
	c.ready = true
	c.mu.Unlock()

	c.log.Info("category cache initialised", zap.Int("media_items", len(byMedia)))
	return nil
}

func (c *CategoryCache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Lookup returns the category slug for a media id, or "" when unknown.
func (c *CategoryCache) Lookup(mediaID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byMedia[mediaID]
}
