// Package migration transfers anonymous session progress to an authenticated
// user after login. The operation is safe to re-run; guarding it to a single
// invocation per login is the caller's contract.
package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/streamhub/internal/platform/analytics"
	"github.com/example/streamhub/services/progress/internal/store"
)

// ErrSessionScan marks a total inability to enumerate the session's records.
// Per-item merge failures are logged and skipped, never fatal.
var ErrSessionScan = errors.New("migration: cannot read session progress")

type Migrator struct {
	store store.ProgressStore
	log   *zap.Logger
	ap    *analytics.Publisher
}

func New(st store.ProgressStore, log *zap.Logger, ap *analytics.Publisher) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{store: st, log: log, ap: ap}
}

// MigrateSessionToUser re-keys every record owned by sessionID to userID.
// When the user already has a record for the same media item, the side with
// the later LastWatchedAt survives and the other is discarded; the survivor
// keeps the non-empty category when only one side set it.
//
// Items migrate independently: a failure on one is logged and skipped, and a
// re-run re-evaluates already-claimed items as no-ops.
func (m *Migrator) MigrateSessionToUser(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return fmt.Errorf("%w: session and user ids required", ErrSessionScan)
	}

	rows, err := m.store.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionScan, err)
	}

	var migrated, merged, skipped int
	for _, sessionRec := range rows {
		if err := m.migrateOne(ctx, sessionRec, userID, &migrated, &merged); err != nil {
			skipped++
			m.log.Warn("migration: item skipped",
				zap.String("media_id", sessionRec.MediaID),
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	m.log.Info("session migration complete",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("migrated", migrated),
		zap.Int("merged", merged),
		zap.Int("skipped", skipped))

	m.ap.Publish(analytics.SubjectSessionMigrated, "session_migrated", userID, map[string]any{
		"migrated": migrated,
		"merged":   merged,
		"skipped":  skipped,
	})
	return nil
}

func (m *Migrator) migrateOne(ctx context.Context, sessionRec store.ProgressRecord, userID string, migrated, merged *int) error {
	userRec, found, err := m.store.GetByUser(ctx, userID, sessionRec.MediaID)
	if err != nil {
		return err
	}

	if !found {
		if err := m.store.Claim(ctx, sessionRec.ID, userID); err != nil {
			return err
		}
		*migrated++
		return nil
	}

	// Conflict: the user watched the same item elsewhere. Recency wins;
	// the user's copy survives a tie.
	if sessionRec.LastWatchedAt.After(userRec.LastWatchedAt) {
		if err := m.store.DeleteByID(ctx, userRec.ID); err != nil {
			return err
		}
		if err := m.store.Claim(ctx, sessionRec.ID, userID); err != nil {
			return err
		}
		if sessionRec.Category == "" && userRec.Category != "" {
			if err := m.store.SetCategory(ctx, sessionRec.ID, userRec.Category); err != nil {
				return err
			}
		}
	} else {
		if err := m.store.DeleteByID(ctx, sessionRec.ID); err != nil {
			return err
		}
		if userRec.Category == "" && sessionRec.Category != "" {
			if err := m.store.SetCategory(ctx, userRec.ID, sessionRec.Category); err != nil {
				return err
			}
		}
	}
	*merged++
	return nil
}
