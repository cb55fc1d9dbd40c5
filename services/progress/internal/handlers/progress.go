package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/streamhub/internal/platform/analytics"
	"github.com/example/streamhub/internal/platform/api"
	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/internal/platform/httpserver"
	"github.com/example/streamhub/services/progress/internal/reconciler"
	"github.com/example/streamhub/services/progress/internal/store"
)

// SubjectProgressReport is the JetStream subject for async progress writes.
const SubjectProgressReport = "activity.progress"

type recordProgressRequest struct {
	MediaID         string  `json:"media_id"`
	Title           string  `json:"title"`
	PosterImage     string  `json:"poster_image"`
	DurationSeconds float64 `json:"duration_seconds"`
	WatchedSeconds  float64 `json:"watched_seconds"`
	Category        string  `json:"category,omitempty"`
}

type progressResponse struct {
	MediaID         string  `json:"media_id"`
	Title           string  `json:"title"`
	PosterImage     string  `json:"poster_image,omitempty"`
	DurationSeconds int     `json:"duration_seconds"`
	WatchedSeconds  int     `json:"watched_seconds"`
	ProgressRatio   float64 `json:"progress_ratio"`
	Category        string  `json:"category,omitempty"`
	LastWatchedAtMs int64   `json:"last_watched_at_ms"`
}

type continueResponse struct {
	Items []progressResponse `json:"items"`
	Limit int                `json:"limit"`
}

// RecordProgress handles POST /v1/progress. With JetStream configured and
// async writes enabled it publishes the report and answers 202; otherwise it
// applies the write synchronously and returns the stored record.
func RecordProgress(rec *reconciler.Reconciler, publisher *EventPublisher, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := auth.IdentityFromRequest(r)
		if id.Empty() {
			api.Unauthorized(w, "IDENTITY_MISSING", "Missing session or user identity", rid)
			return
		}

		var req recordProgressRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}

		sample := reconciler.Sample{
			MediaID:         strings.TrimSpace(req.MediaID),
			Title:           req.Title,
			PosterImage:     req.PosterImage,
			DurationSeconds: req.DurationSeconds,
			WatchedSeconds:  req.WatchedSeconds,
			Category:        req.Category,
		}
		// Bad reports are rejected here, never deferred to the worker.
		if err := reconciler.Validate(id, sample); err != nil {
			writeProgressError(w, rid, err)
			return
		}

		if publisher.Enabled() {
			payload := map[string]any{
				"session_id":       id.SessionID,
				"user_id":          id.UserID,
				"media_id":         sample.MediaID,
				"title":            sample.Title,
				"poster_image":     sample.PosterImage,
				"duration_seconds": sample.DurationSeconds,
				"watched_seconds":  sample.WatchedSeconds,
				"category":         sample.Category,
			}
			eventID, err := publisher.PublishJSON(SubjectProgressReport, payload)
			if err != nil {
				api.WriteError(w, http.StatusServiceUnavailable, "EVENT_PUBLISH_FAILED", "failed to publish event", rid, nil)
				return
			}
			w.Header().Set("X-Event-ID", eventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		out, err := rec.Record(r.Context(), id, sample)
		if err != nil {
			writeProgressError(w, rid, err)
			return
		}

		ap.Publish(analytics.SubjectProgressRecorded, "progress_recorded", id.UserID, map[string]any{
			"media_id":       out.MediaID,
			"progress_ratio": out.ProgressRatio,
		})
		api.WriteJSON(w, http.StatusOK, toProgressResponse(out))
	}
}

// ContinueWatching handles GET /v1/progress/continue-watching.
// An empty result is a normal answer, never an error.
func ContinueWatching(rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := auth.IdentityFromRequest(r)
		if id.Empty() {
			api.Unauthorized(w, "IDENTITY_MISSING", "Missing session or user identity", rid)
			return
		}

		limit := 20
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		if limit > 100 {
			limit = 100
		}

		items := rec.ContinueWatching(r.Context(), id, limit)
		out := continueResponse{Items: make([]progressResponse, 0, len(items)), Limit: limit}
		for _, it := range items {
			out.Items = append(out.Items, toProgressResponse(it))
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// RemoveProgress handles DELETE /v1/progress/{media_id}. Idempotent.
func RemoveProgress(rec *reconciler.Reconciler, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := auth.IdentityFromRequest(r)
		if id.Empty() {
			api.Unauthorized(w, "IDENTITY_MISSING", "Missing session or user identity", rid)
			return
		}

		mediaID := strings.TrimSpace(chi.URLParam(r, "media_id"))
		if err := rec.Remove(r.Context(), id, mediaID); err != nil {
			writeProgressError(w, rid, err)
			return
		}

		ap.Publish(analytics.SubjectProgressRemoved, "progress_removed", id.UserID, map[string]any{
			"media_id": mediaID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeProgressError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, reconciler.ErrInvalidInput):
		api.BadRequest(w, "INVALID_INPUT", err.Error(), rid, nil)
	case errors.Is(err, store.ErrUnavailable):
		api.WriteError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Progress store unavailable", rid, nil)
	default:
		api.Internal(w, rid)
	}
}

func toProgressResponse(rec store.ProgressRecord) progressResponse {
	return progressResponse{
		MediaID:         rec.MediaID,
		Title:           rec.Title,
		PosterImage:     rec.PosterImage,
		DurationSeconds: rec.DurationSeconds,
		WatchedSeconds:  rec.WatchedSeconds,
		ProgressRatio:   rec.ProgressRatio,
		Category:        rec.Category,
		LastWatchedAtMs: rec.LastWatchedAt.UnixMilli(),
	}
}
