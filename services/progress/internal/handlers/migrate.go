package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/streamhub/internal/platform/api"
	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/internal/platform/httpserver"
	"github.com/example/streamhub/services/progress/internal/migration"
)

type migrateRequest struct {
	SessionID string `json:"session_id"`
}

// MigrateSession handles POST /v1/progress/migrate, the post-login hook that
// claims anonymous session history for the authenticated user. Routes must
// mount it behind RequireUser. The endpoint is safe to call again, but the
// client is expected to invoke it once per login transition.
func MigrateSession(m *migration.Migrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}

		var req migrateRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			api.BadRequest(w, "MISSING_SESSION_ID", "Session id is required", rid, nil)
			return
		}

		if err := m.MigrateSessionToUser(r.Context(), sessionID, uid); err != nil {
			if errors.Is(err, migration.ErrSessionScan) {
				api.WriteError(w, http.StatusServiceUnavailable, "MIGRATION_FAILED", "Could not read session history", rid, nil)
				return
			}
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
