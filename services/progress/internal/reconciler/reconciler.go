// Package reconciler implements the watch-progress core: validated upserts
// of playback samples, the Continue Watching query, and item removal.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/services/progress/internal/store"
)

// ErrInvalidInput marks a rejected progress report: missing identity or
// media fields, or a zero playable duration.
var ErrInvalidInput = errors.New("invalid progress report")

// Continue Watching band: items below the floor are accidental taps,
// items above the ceiling are effectively finished.
const (
	continueRatioFloor   = 0.02
	continueRatioCeiling = 0.95
)

const (
	defaultContinueLimit = 20
	maxContinueLimit     = 100
)

// Sample is one playback heartbeat as reported by the client.
// Seconds are accepted as floats and coerced; garbage becomes zero.
type Sample struct {
	MediaID         string
	Title           string
	PosterImage     string
	DurationSeconds float64
	WatchedSeconds  float64
	Category        string
}

// CategoryLookup resolves a media item's category tag from catalog data.
// A cold lookup reports Ready()=false and is skipped, never an error.
type CategoryLookup interface {
	Ready() bool
	Lookup(mediaID string) string
}

type Reconciler struct {
	store      store.ProgressStore
	categories CategoryLookup
	log        *zap.Logger
}

// New creates a Reconciler. categories may be nil when no catalog-backed
// category backfill is wanted.
func New(st store.ProgressStore, categories CategoryLookup, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: st, categories: categories, log: log}
}

// Validate applies Record's input checks without writing anything. The async
// write path runs it before publishing so a bad report is rejected at the
// edge instead of being dropped by the worker.
func Validate(id auth.Identity, s Sample) error {
	if id.Empty() {
		return fmt.Errorf("%w: missing identity", ErrInvalidInput)
	}
	if s.MediaID == "" || s.Title == "" {
		return fmt.Errorf("%w: missing media_id or title", ErrInvalidInput)
	}
	if coerceSeconds(s.DurationSeconds) == 0 {
		return ErrInvalidInput
	}
	return nil
}

// Record validates and upserts one progress sample for the given identity.
// The write is keyed by the authoritative owner (user over session); the
// watched position is clamped to [0, duration] and the ratio recomputed
// server-side, never trusted from the caller.
func (r *Reconciler) Record(ctx context.Context, id auth.Identity, s Sample) (store.ProgressRecord, error) {
	if err := Validate(id, s); err != nil {
		return store.ProgressRecord{}, err
	}

	duration := coerceSeconds(s.DurationSeconds)
	watched := coerceSeconds(s.WatchedSeconds)
	if watched > duration {
		watched = duration
	}

	category := s.Category
	if category == "" && r.categories != nil && r.categories.Ready() {
		category = r.categories.Lookup(s.MediaID)
	}

	rec := store.ProgressRecord{
		SessionID:       id.SessionID,
		UserID:          id.UserID,
		MediaID:         s.MediaID,
		Title:           s.Title,
		PosterImage:     s.PosterImage,
		DurationSeconds: duration,
		WatchedSeconds:  watched,
		ProgressRatio:   float64(watched) / float64(duration),
		Category:        category,
	}
	if rec.UserID != "" {
		// The session id is not part of the user-keyed upsert key; leaving it
		// off avoids stamping another device's session onto the user's row.
		rec.SessionID = ""
	}

	return r.store.Upsert(ctx, rec)
}

// ContinueWatching returns the viewer's resumable items: strictly inside the
// (2%, 95%) ratio band, most recently watched first, capped at limit.
// Store failures degrade to an empty list; this feeds a best-effort UI row.
func (r *Reconciler) ContinueWatching(ctx context.Context, id auth.Identity, limit int) []store.ProgressRecord {
	if id.Empty() {
		return nil
	}
	if limit <= 0 {
		limit = defaultContinueLimit
	}
	if limit > maxContinueLimit {
		limit = maxContinueLimit
	}

	recs, err := r.store.ListInProgress(ctx, ownerOf(id), continueRatioFloor, continueRatioCeiling, limit)
	if err != nil {
		r.log.Warn("continue watching degraded to empty", zap.Error(err))
		return nil
	}
	return recs
}

// Remove deletes the viewer's record for mediaID. Idempotent: removing an
// absent record succeeds.
func (r *Reconciler) Remove(ctx context.Context, id auth.Identity, mediaID string) error {
	if id.Empty() || mediaID == "" {
		return ErrInvalidInput
	}
	return r.store.Delete(ctx, ownerOf(id), mediaID)
}

func ownerOf(id auth.Identity) store.Owner {
	if !id.Anonymous() {
		return store.Owner{UserID: id.UserID}
	}
	return store.Owner{SessionID: id.SessionID}
}

// coerceSeconds turns a reported float into a non-negative whole second count.
// NaN, infinities and negatives all collapse to zero.
func coerceSeconds(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return int(v)
}
