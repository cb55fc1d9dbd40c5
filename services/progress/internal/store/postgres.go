package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const progressColumns = `id, session_id, user_id, media_id, title, poster_image,
duration_seconds, watched_seconds, progress_ratio, category, last_watched_at`

// PostgresProgressStore is the production Postgres-backed implementation.
//
// Uniqueness of (owner, media) pairs is enforced by two partial unique
// indexes on watch_progress: (user_id, media_id) WHERE user_id <> '' and
// (session_id, media_id) WHERE user_id = ''. The upserts below target them.
type PostgresProgressStore struct {
	db *pgxpool.Pool
}

func NewPostgresProgressStore(db *pgxpool.Pool) *PostgresProgressStore {
	return &PostgresProgressStore{db: db}
}

func (s *PostgresProgressStore) Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.LastWatchedAt.IsZero() {
		rec.LastWatchedAt = time.Now().UTC()
	}

	conflict := `(session_id, media_id) WHERE user_id = ''`
	if rec.UserID != "" {
		conflict = `(user_id, media_id) WHERE user_id <> ''`
	}

	q := `
INSERT INTO watch_progress (` + progressColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT ` + conflict + `
DO UPDATE SET
  title            = EXCLUDED.title,
  poster_image     = EXCLUDED.poster_image,
  duration_seconds = EXCLUDED.duration_seconds,
  watched_seconds  = EXCLUDED.watched_seconds,
  progress_ratio   = EXCLUDED.progress_ratio,
  category         = CASE WHEN EXCLUDED.category <> '' THEN EXCLUDED.category
                          ELSE watch_progress.category END,
  last_watched_at  = EXCLUDED.last_watched_at
RETURNING ` + progressColumns

	row := s.db.QueryRow(ctx, q,
		rec.ID, rec.SessionID, rec.UserID, rec.MediaID, rec.Title, rec.PosterImage,
		rec.DurationSeconds, rec.WatchedSeconds, rec.ProgressRatio, rec.Category, rec.LastWatchedAt,
	)
	out, err := scanProgress(row)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("%w: upsert: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *PostgresProgressStore) ListInProgress(ctx context.Context, owner Owner, low, high float64, limit int) ([]ProgressRecord, error) {
	clause, arg := ownerClause(owner)
	q := `SELECT ` + progressColumns + ` FROM watch_progress WHERE ` + clause + `
AND progress_ratio > $2 AND progress_ratio < $3
ORDER BY last_watched_at DESC LIMIT $4`

	rows, err := s.db.Query(ctx, q, arg, low, high, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list in progress: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return collectProgress(rows)
}

func (s *PostgresProgressStore) ListByOwner(ctx context.Context, owner Owner) ([]ProgressRecord, error) {
	clause, arg := ownerClause(owner)
	q := `SELECT ` + progressColumns + ` FROM watch_progress WHERE ` + clause + `
ORDER BY last_watched_at DESC`

	rows, err := s.db.Query(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("%w: list by owner: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return collectProgress(rows)
}

func (s *PostgresProgressStore) Delete(ctx context.Context, owner Owner, mediaID string) error {
	clause, arg := ownerClause(owner)
	_, err := s.db.Exec(ctx, `DELETE FROM watch_progress WHERE `+clause+` AND media_id = $2`, arg, mediaID)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresProgressStore) ListBySession(ctx context.Context, sessionID string) ([]ProgressRecord, error) {
	q := `SELECT ` + progressColumns + ` FROM watch_progress
WHERE session_id = $1 AND user_id = '' ORDER BY last_watched_at DESC`

	rows, err := s.db.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list by session: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return collectProgress(rows)
}

func (s *PostgresProgressStore) GetByUser(ctx context.Context, userID, mediaID string) (ProgressRecord, bool, error) {
	q := `SELECT ` + progressColumns + ` FROM watch_progress WHERE user_id = $1 AND media_id = $2`
	rec, err := scanProgress(s.db.QueryRow(ctx, q, userID, mediaID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressRecord{}, false, nil
		}
		return ProgressRecord{}, false, fmt.Errorf("%w: get by user: %v", ErrUnavailable, err)
	}
	return rec, true, nil
}

func (s *PostgresProgressStore) Claim(ctx context.Context, id uuid.UUID, userID string) error {
	_, err := s.db.Exec(ctx, `UPDATE watch_progress SET user_id = $2 WHERE id = $1`, id, userID)
	if err != nil {
		return fmt.Errorf("%w: claim: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresProgressStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM watch_progress WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete by id: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresProgressStore) SetCategory(ctx context.Context, id uuid.UUID, category string) error {
	_, err := s.db.Exec(ctx, `UPDATE watch_progress SET category = $2 WHERE id = $1`, id, category)
	if err != nil {
		return fmt.Errorf("%w: set category: %v", ErrUnavailable, err)
	}
	return nil
}

// ownerClause builds the WHERE fragment for the authoritative owner, using $1.
// Anonymous queries exclude claimed rows so a reused session id never leaks
// another account's history.
func ownerClause(owner Owner) (string, any) {
	if owner.ByUser() {
		return `user_id = $1`, owner.UserID
	}
	return `session_id = $1 AND user_id = ''`, owner.SessionID
}

func scanProgress(row pgx.Row) (ProgressRecord, error) {
	var rec ProgressRecord
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.MediaID, &rec.Title, &rec.PosterImage,
		&rec.DurationSeconds, &rec.WatchedSeconds, &rec.ProgressRatio, &rec.Category, &rec.LastWatchedAt)
	return rec, err
}

func collectProgress(rows pgx.Rows) ([]ProgressRecord, error) {
	var out []ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrUnavailable, err)
	}
	return out, nil
}
