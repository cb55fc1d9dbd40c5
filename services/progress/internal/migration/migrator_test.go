package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/streamhub/services/progress/internal/store"
)

func seed(t *testing.T, st *store.InMemoryProgressStore, rec store.ProgressRecord) store.ProgressRecord {
	t.Helper()
	out, err := st.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("seed %s: %v", rec.MediaID, err)
	}
	return out
}

func TestMigrate_MovesSessionRecords(t *testing.T) {
	st := store.NewInMemoryProgressStore()
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 40, ProgressRatio: 0.4})
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m2", Title: "m2", DurationSeconds: 100, WatchedSeconds: 60, ProgressRatio: 0.6})

	m := New(st, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	userRows, _ := st.ListByOwner(context.Background(), store.Owner{UserID: "user-1"})
	if len(userRows) != 2 {
		t.Fatalf("expected 2 user rows, got %d", len(userRows))
	}
	sessRows, _ := st.ListBySession(context.Background(), "sess-1")
	if len(sessRows) != 0 {
		t.Fatalf("expected no remaining session rows, got %d", len(sessRows))
	}
}

func TestMigrate_ConflictSessionNewerWins(t *testing.T) {
	st := store.NewInMemoryProgressStore()
	old := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	seed(t, st, store.ProgressRecord{UserID: "user-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2, LastWatchedAt: old})
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 80, ProgressRatio: 0.8, LastWatchedAt: old.Add(time.Hour)})

	m := New(st, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rec, found, _ := st.GetByUser(context.Background(), "user-1", "m1")
	if !found {
		t.Fatal("expected a surviving user record")
	}
	if rec.WatchedSeconds != 80 {
		t.Fatalf("expected the session copy to survive, got watched=%d", rec.WatchedSeconds)
	}
	rows, _ := st.ListByOwner(context.Background(), store.Owner{UserID: "user-1"})
	if len(rows) != 1 {
		t.Fatalf("expected single merged row, got %d", len(rows))
	}
}

func TestMigrate_ConflictUserNewerWins(t *testing.T) {
	st := store.NewInMemoryProgressStore()
	old := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 80, ProgressRatio: 0.8, LastWatchedAt: old})
	seed(t, st, store.ProgressRecord{UserID: "user-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2, LastWatchedAt: old.Add(time.Hour)})

	m := New(st, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rec, found, _ := st.GetByUser(context.Background(), "user-1", "m1")
	if !found || rec.WatchedSeconds != 20 {
		t.Fatalf("expected the user copy to survive, got found=%v watched=%d", found, rec.WatchedSeconds)
	}
	sessRows, _ := st.ListBySession(context.Background(), "sess-1")
	if len(sessRows) != 0 {
		t.Fatalf("expected session copy discarded, got %d rows", len(sessRows))
	}
}

func TestMigrate_ConflictTieKeepsUserCopy(t *testing.T) {
	st := store.NewInMemoryProgressStore()
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 80, ProgressRatio: 0.8, LastWatchedAt: at})
	seed(t, st, store.ProgressRecord{UserID: "user-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2, LastWatchedAt: at})

	m := New(st, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rec, _, _ := st.GetByUser(context.Background(), "user-1", "m1")
	if rec.WatchedSeconds != 20 {
		t.Fatalf("expected user copy on tie, got watched=%d", rec.WatchedSeconds)
	}
}

func TestMigrate_MergeTakesNonEmptyCategory(t *testing.T) {
	st := store.NewInMemoryProgressStore()
	old := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Session copy is newer but has no category; the user's category carries over.
	seed(t, st, store.ProgressRecord{UserID: "user-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2, Category: "tennis", LastWatchedAt: old})
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 80, ProgressRatio: 0.8, LastWatchedAt: old.Add(time.Hour)})

	// User copy is newer but has no category; the session's category carries over.
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m2", Title: "m2", DurationSeconds: 100, WatchedSeconds: 80, ProgressRatio: 0.8, Category: "boxing", LastWatchedAt: old})
	seed(t, st, store.ProgressRecord{UserID: "user-1", MediaID: "m2", Title: "m2", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2, LastWatchedAt: old.Add(time.Hour)})

	m := New(st, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rec1, _, _ := st.GetByUser(context.Background(), "user-1", "m1")
	if rec1.Category != "tennis" {
		t.Fatalf("m1: expected category 'tennis', got %q", rec1.Category)
	}
	rec2, _, _ := st.GetByUser(context.Background(), "user-1", "m2")
	if rec2.Category != "boxing" {
		t.Fatalf("m2: expected category 'boxing', got %q", rec2.Category)
	}
}

func TestMigrate_RerunIsNoOp(t *testing.T) {
	st := store.NewInMemoryProgressStore()
	seed(t, st, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 40, ProgressRatio: 0.4})

	m := New(st, nil, nil)
	for i := 0; i < 2; i++ {
		if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	rows, _ := st.ListByOwner(context.Background(), store.Owner{UserID: "user-1"})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after re-run, got %d", len(rows))
	}
}

func TestMigrate_EmptySessionIsNoError(t *testing.T) {
	m := New(store.NewInMemoryProgressStore(), nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("expected nil for empty session, got %v", err)
	}
}

func TestMigrate_MissingIDs(t *testing.T) {
	m := New(store.NewInMemoryProgressStore(), nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "", "user-1"); !errors.Is(err, ErrSessionScan) {
		t.Fatalf("expected ErrSessionScan, got %v", err)
	}
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", ""); !errors.Is(err, ErrSessionScan) {
		t.Fatalf("expected ErrSessionScan, got %v", err)
	}
}

type scanFailStore struct {
	store.ProgressStore
}

func (s *scanFailStore) ListBySession(context.Context, string) ([]store.ProgressRecord, error) {
	return nil, store.ErrUnavailable
}

func TestMigrate_EnumerationFailure(t *testing.T) {
	m := New(&scanFailStore{}, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); !errors.Is(err, ErrSessionScan) {
		t.Fatalf("expected ErrSessionScan, got %v", err)
	}
}

type claimFailStore struct {
	*store.InMemoryProgressStore
	failMedia string
}

func (s *claimFailStore) Claim(ctx context.Context, id uuid.UUID, userID string) error {
	rec, ok := s.byID(ctx, id)
	if ok && rec.MediaID == s.failMedia {
		return store.ErrUnavailable
	}
	return s.InMemoryProgressStore.Claim(ctx, id, userID)
}

func (s *claimFailStore) byID(ctx context.Context, id uuid.UUID) (store.ProgressRecord, bool) {
	rows, err := s.ListBySession(ctx, "sess-1")
	if err != nil {
		return store.ProgressRecord{}, false
	}
	for _, rec := range rows {
		if rec.ID == id {
			return rec, true
		}
	}
	return store.ProgressRecord{}, false
}

func TestMigrate_ItemFailureSkipsAndContinues(t *testing.T) {
	inner := store.NewInMemoryProgressStore()
	st := &claimFailStore{InMemoryProgressStore: inner, failMedia: "m1"}
	seed(t, inner, store.ProgressRecord{SessionID: "sess-1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 40, ProgressRatio: 0.4})
	seed(t, inner, store.ProgressRecord{SessionID: "sess-1", MediaID: "m2", Title: "m2", DurationSeconds: 100, WatchedSeconds: 60, ProgressRatio: 0.6})

	m := New(st, nil, nil)
	if err := m.MigrateSessionToUser(context.Background(), "sess-1", "user-1"); err != nil {
		t.Fatalf("expected nil despite item failure, got %v", err)
	}

	if _, found, _ := inner.GetByUser(context.Background(), "user-1", "m2"); !found {
		t.Fatal("expected m2 migrated")
	}
	if _, found, _ := inner.GetByUser(context.Background(), "user-1", "m1"); found {
		t.Fatal("expected m1 skipped")
	}
}
