// Package series resolves which episode of a series a viewer should watch
// next, cross-referencing catalog episode ordering with progress records.
package series

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/services/progress/internal/store"
)

// finishedThreshold is the watch ratio at which an episode counts as done.
const finishedThreshold = 0.95

// EpisodeRef is one episode's position within a series as reported by the
// external catalog. Season/Episode numbers are normalised to at least 1.
type EpisodeRef struct {
	SeriesID string `json:"series_id"`
	MediaID  string `json:"media_id"`
	Season   int    `json:"season"`
	Episode  int    `json:"episode"`
}

// EpisodeLister fetches a series' episode list from the external catalog.
type EpisodeLister interface {
	ListEpisodes(ctx context.Context, seriesID string) ([]EpisodeRef, error)
}

// NextEpisode is the resolved watch target.
type NextEpisode struct {
	MediaID string `json:"media_id"`
	Season  int    `json:"season_number"`
	Episode int    `json:"episode_number"`
}

// Resolver implements the next-episode state machine. It is a display-layer
// convenience, not a source of truth: catalog failures resolve to nothing
// and store failures fall back to treating the viewer as brand new.
type Resolver struct {
	Catalog EpisodeLister
	Store   store.ProgressStore
	Log     *zap.Logger

	// NoRewatchFallback suppresses the "last episode again" answer for a
	// fully-watched series and resolves to nothing instead.
	NoRewatchFallback bool
}

// Resolve determines the episode to play for the viewer:
//   - no episodes: nothing
//   - no identity or no progress in the series: the first episode
//   - most recent episode unfinished: that episode
//   - most recent episode finished: the one after it, or the last episode
//     again when the series is fully watched (unless NoRewatchFallback)
func (r *Resolver) Resolve(ctx context.Context, id auth.Identity, seriesID string) *NextEpisode {
	episodes, err := r.Catalog.ListEpisodes(ctx, seriesID)
	if err != nil {
		r.logw("next episode: catalog fetch failed", seriesID, err)
		return nil
	}
	if len(episodes) == 0 {
		return nil
	}
	sortEpisodes(episodes)

	if id.Empty() {
		return target(episodes[0])
	}

	progress := r.progressByMedia(ctx, id, seriesID)
	lastIdx := -1
	for i, ep := range episodes {
		rec, ok := progress[ep.MediaID]
		if !ok {
			continue
		}
		if lastIdx == -1 || rec.LastWatchedAt.After(progress[episodes[lastIdx].MediaID].LastWatchedAt) ||
			rec.LastWatchedAt.Equal(progress[episodes[lastIdx].MediaID].LastWatchedAt) {
			lastIdx = i
		}
	}
	if lastIdx == -1 {
		return target(episodes[0])
	}

	if progress[episodes[lastIdx].MediaID].ProgressRatio < finishedThreshold {
		return target(episodes[lastIdx])
	}
	if lastIdx+1 < len(episodes) {
		return target(episodes[lastIdx+1])
	}
	if r.NoRewatchFallback {
		return nil
	}
	// Series fully watched: offer the final episode again so the viewer is
	// never stranded without a playable target.
	return target(episodes[len(episodes)-1])
}

// progressByMedia loads the viewer's progress rows keyed by media id.
// A store failure degrades to "no progress" rather than failing resolution.
func (r *Resolver) progressByMedia(ctx context.Context, id auth.Identity, seriesID string) map[string]store.ProgressRecord {
	owner := store.Owner{UserID: id.UserID}
	if id.Anonymous() {
		owner = store.Owner{SessionID: id.SessionID}
	}
	recs, err := r.Store.ListByOwner(ctx, owner)
	if err != nil {
		r.logw("next episode: progress lookup failed, treating viewer as new", seriesID, err)
		return nil
	}
	out := make(map[string]store.ProgressRecord, len(recs))
	for _, rec := range recs {
		out[rec.MediaID] = rec
	}
	return out
}

func (r *Resolver) logw(msg, seriesID string, err error) {
	if r.Log != nil {
		r.Log.Warn(msg, zap.String("series_id", seriesID), zap.Error(err))
	}
}

func target(ep EpisodeRef) *NextEpisode {
	return &NextEpisode{MediaID: ep.MediaID, Season: normalise(ep.Season), Episode: normalise(ep.Episode)}
}

// sortEpisodes orders by (season, episode) ascending with missing numbers
// defaulting to 1, matching how the catalog presents series.
func sortEpisodes(eps []EpisodeRef) {
	sort.SliceStable(eps, func(i, j int) bool {
		si, sj := normalise(eps[i].Season), normalise(eps[j].Season)
		if si != sj {
			return si < sj
		}
		return normalise(eps[i].Episode) < normalise(eps[j].Episode)
	})
}

func normalise(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
