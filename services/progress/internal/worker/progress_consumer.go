package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/streamhub/internal/platform/auth"
	"github.com/example/streamhub/services/progress/internal/reconciler"
)

// ProgressEvent is the payload published by the HTTP layer for async writes.
type ProgressEvent struct {
	EventID         string  `json:"event_id"`
	SessionID       string  `json:"session_id"`
	UserID          string  `json:"user_id"`
	MediaID         string  `json:"media_id"`
	Title           string  `json:"title"`
	PosterImage     string  `json:"poster_image"`
	DurationSeconds float64 `json:"duration_seconds"`
	WatchedSeconds  float64 `json:"watched_seconds"`
	Category        string  `json:"category"`
	CreatedAt       string  `json:"created_at"`
}

// StartProgressConsumer subscribes to activity.progress and applies reports
// through the same validated upsert as the synchronous path. Events are
// deduplicated by event id via the processed_events table, so redelivery
// after a crash re-applies nothing.
func StartProgressConsumer(ctx context.Context, nc *nats.Conn, pool *pgxpool.Pool, rec *reconciler.Reconciler, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("progress consumer: jetstream", zap.Error(err))
		return
	}

	sub, err := js.PullSubscribe("activity.progress", "progress_apply")
	if err != nil {
		log.Error("progress consumer: subscribe", zap.Error(err))
		return
	}

	go func() {
		batchSize := envInt("WORKER_BATCH_SIZE", 100)
		batchInterval := envInt("WORKER_BATCH_INTERVAL_MS", 2000)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(batchSize, nats.MaxWait(time.Duration(batchInterval)*time.Millisecond))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				log.Warn("progress consumer: fetch", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			for _, m := range msgs {
				if err := applyMessage(ctx, pool, rec, m); err != nil {
					log.Warn("progress consumer: apply failed", zap.Error(err))
					if err := m.Nak(); err != nil {
						log.Warn("progress consumer: nak", zap.Error(err))
					}
					continue
				}
				if err := m.Ack(); err != nil {
					log.Warn("progress consumer: ack", zap.Error(err))
				}
			}
		}
	}()
}

// eventDB begins the transaction the dedup marker lives in.
type eventDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// applyMessage dedups and applies a single event. Malformed or invalid events
// return nil so the message is acked away instead of redelivered forever.
//
// The dedup marker only commits together with a successful (or invalid,
// hence dropped) apply: a transient store failure rolls it back, so the
// redelivered event is not mistaken for an already-processed one.
func applyMessage(ctx context.Context, db eventDB, rec *reconciler.Reconciler, m *nats.Msg) error {
	var ev ProgressEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if ev.EventID != "" {
		ct, err := tx.Exec(ctx, `
INSERT INTO processed_events (event_id, subject, created_at, payload)
VALUES ($1,$2,$3,$4) ON CONFLICT (event_id) DO NOTHING`,
			ev.EventID, "activity.progress", ev.CreatedAt, m.Data)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			// already processed
			return nil
		}
	}

	id := auth.Identity{SessionID: ev.SessionID, UserID: ev.UserID}
	_, err = rec.Record(ctx, id, reconciler.Sample{
		MediaID:         ev.MediaID,
		Title:           ev.Title,
		PosterImage:     ev.PosterImage,
		DurationSeconds: ev.DurationSeconds,
		WatchedSeconds:  ev.WatchedSeconds,
		Category:        ev.Category,
	})
	if errors.Is(err, reconciler.ErrInvalidInput) {
		// drop, and commit the marker so the event is not redelivered
		return tx.Commit(ctx)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
