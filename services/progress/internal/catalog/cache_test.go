package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/streamhub/services/progress/internal/series"
)

type mapCache struct {
	data map[string][]byte
	err  error
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any) error {
	if c.err != nil {
		return c.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

type countingLister struct {
	episodes []series.EpisodeRef
	err      error
	calls    int
}

func (l *countingLister) ListEpisodes(context.Context, string) ([]series.EpisodeRef, error) {
	l.calls++
	return l.episodes, l.err
}

func TestCachedEpisodes_SecondCallHitsCache(t *testing.T) {
	src := &countingLister{episodes: []series.EpisodeRef{{SeriesID: "s1", MediaID: "ep1", Season: 1, Episode: 1}}}
	ce := &CachedEpisodes{Source: src, Cache: newMapCache()}

	for i := 0; i < 2; i++ {
		eps, err := ce.ListEpisodes(context.Background(), "s1")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if len(eps) != 1 || eps[0].MediaID != "ep1" {
			t.Fatalf("call %d: unexpected episodes %+v", i, eps)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 source call, got %d", src.calls)
	}
}

func TestCachedEpisodes_CacheFailureFallsThrough(t *testing.T) {
	src := &countingLister{episodes: []series.EpisodeRef{{SeriesID: "s1", MediaID: "ep1"}}}
	ce := &CachedEpisodes{Source: src, Cache: &mapCache{err: errors.New("redis down")}}

	eps, err := ce.ListEpisodes(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected fall-through, got %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected source episodes, got %d", len(eps))
	}
}

func TestCachedEpisodes_SourceErrorNotCached(t *testing.T) {
	src := &countingLister{err: ErrUnavailable}
	cache := newMapCache()
	ce := &CachedEpisodes{Source: src, Cache: cache}

	if _, err := ce.ListEpisodes(context.Background(), "s1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(cache.data) != 0 {
		t.Fatalf("expected nothing cached on error, got %d entries", len(cache.data))
	}
}
