package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/streamhub/services/progress/internal/series"
)

// RedisCache is a JSON value cache with a fixed TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, b, c.TTL).Err()
}

// ValueCache is the subset of cache behaviour CachedEpisodes needs.
type ValueCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// CachedEpisodes wraps an episode lister with a short-TTL Redis cache.
// Cache trouble is logged and falls through to the source; episode ordering
// is a per-request convenience and may be slightly stale.
type CachedEpisodes struct {
	Source series.EpisodeLister
	Cache  ValueCache
	Log    *zap.Logger
}

func (c *CachedEpisodes) ListEpisodes(ctx context.Context, seriesID string) ([]series.EpisodeRef, error) {
	if c.Cache == nil {
		return c.Source.ListEpisodes(ctx, seriesID)
	}

	key := "catalog:episodes:" + seriesID
	var cached []series.EpisodeRef
	hit, err := c.Cache.Get(ctx, key, &cached)
	if err != nil && c.Log != nil {
		c.Log.Warn("episode cache read failed", zap.String("series_id", seriesID), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	eps, err := c.Source.ListEpisodes(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Set(ctx, key, eps); err != nil && c.Log != nil {
		c.Log.Warn("episode cache write failed", zap.String("series_id", seriesID), zap.Error(err))
	}
	return eps, nil
}
