package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/streamhub/internal/platform/analytics"
	"github.com/example/streamhub/internal/platform/api"
	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/internal/platform/httpserver"
	"github.com/example/streamhub/services/progress/internal/series"
)

// NextEpisode handles GET /v1/series/{series_id}/next-episode.
// A fully anonymous request (no session, no user) still resolves: the viewer
// gets the first episode for pre-auth preview browsing. 204 means the series
// has no playable target (or the catalog was unreachable, by design).
func NextEpisode(res *series.Resolver, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		seriesID := strings.TrimSpace(chi.URLParam(r, "series_id"))
		if seriesID == "" {
			api.BadRequest(w, "MISSING_SERIES_ID", "Series id is required", rid, nil)
			return
		}

		id := auth.IdentityFromRequest(r)
		next := res.Resolve(r.Context(), id, seriesID)
		if next == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ap.Publish(analytics.SubjectNextEpisode, "next_episode_resolved", id.UserID, map[string]any{
			"series_id": seriesID,
			"media_id":  next.MediaID,
		})
		api.WriteJSON(w, http.StatusOK, next)
	}
}
