package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable wraps driver-level failures so callers can decide between
// surfacing the error (writes) and degrading to an empty result (reads).
var ErrUnavailable = errors.New("progress store unavailable")

// ProgressRecord is one row of watch progress: one per (viewer, media item).
// A record created anonymously keeps its SessionID after migration for audit;
// once UserID is set it is the authoritative owner.
type ProgressRecord struct {
	ID              uuid.UUID
	SessionID       string
	UserID          string
	MediaID         string
	Title           string
	PosterImage     string
	DurationSeconds int
	WatchedSeconds  int
	ProgressRatio   float64
	Category        string
	LastWatchedAt   time.Time
}

// Owner is the query key for progress rows: the user id when present,
// otherwise the anonymous session id.
type Owner struct {
	UserID    string
	SessionID string
}

// ByUser reports whether the authoritative key is the user id.
func (o Owner) ByUser() bool { return o.UserID != "" }

// ProgressStore defines persistence operations for watch progress.
//
// Upsert must be atomic per (owner, media) key: concurrent reports for the
// same pair may interleave but must never produce duplicate rows.
type ProgressStore interface {
	// Upsert inserts or updates the row keyed by the record's authoritative
	// owner and MediaID. Display fields and LastWatchedAt are overwritten;
	// an empty Category on the incoming record preserves the stored one.
	Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error)

	// ListInProgress returns up to limit rows for owner whose ProgressRatio
	// lies strictly inside (low, high), ordered by LastWatchedAt DESC.
	ListInProgress(ctx context.Context, owner Owner, low, high float64, limit int) ([]ProgressRecord, error)

	// ListByOwner returns all rows for owner ordered by LastWatchedAt DESC.
	ListByOwner(ctx context.Context, owner Owner) ([]ProgressRecord, error)

	// Delete removes the row for (owner, mediaID). Missing rows are not an error.
	Delete(ctx context.Context, owner Owner, mediaID string) error

	// ListBySession returns every unclaimed row still owned by sessionID.
	ListBySession(ctx context.Context, sessionID string) ([]ProgressRecord, error)

	// GetByUser fetches the row for (userID, mediaID); found=false when absent.
	GetByUser(ctx context.Context, userID, mediaID string) (rec ProgressRecord, found bool, err error)

	// Claim re-keys a row's ownership to userID, retaining the session id.
	Claim(ctx context.Context, id uuid.UUID, userID string) error

	// DeleteByID removes a single row by primary key.
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// SetCategory overwrites the category of a single row.
	SetCategory(ctx context.Context, id uuid.UUID, category string) error
}
