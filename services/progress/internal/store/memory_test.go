package store

import (
	"context"
	"testing"
	"time"
)

func TestUpsert_KeyedByUserWhenPresent(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()

	first, err := st.Upsert(ctx, ProgressRecord{UserID: "u1", SessionID: "s1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 10, ProgressRatio: 0.1})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Same user from a different device session hits the same row.
	second, err := st.Upsert(ctx, ProgressRecord{UserID: "u1", SessionID: "s2", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 50, ProgressRatio: 0.5})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one row per (user, media), got %s and %s", first.ID, second.ID)
	}
	if second.WatchedSeconds != 50 {
		t.Fatalf("expected updated watched=50, got %d", second.WatchedSeconds)
	}
}

func TestUpsert_AnonymousSessionsAreIsolated(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()

	a, _ := st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 10, ProgressRatio: 0.1})
	b, _ := st.Upsert(ctx, ProgressRecord{SessionID: "s2", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2})
	if a.ID == b.ID {
		t.Fatal("expected separate rows for separate sessions")
	}
}

func TestUpsert_StickyCategory(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()

	if _, err := st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 10, ProgressRatio: 0.1, Category: "tennis"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, err := st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 50, ProgressRatio: 0.5})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.Category != "tennis" {
		t.Fatalf("expected category to stick, got %q", rec.Category)
	}
}

func TestClaim_RemovesRowFromSessionScope(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()

	rec, _ := st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 10, ProgressRatio: 0.1})
	if err := st.Claim(ctx, rec.ID, "u1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// The session id is still stored, but a reused session must not see the
	// claimed row.
	sessRows, _ := st.ListByOwner(ctx, Owner{SessionID: "s1"})
	if len(sessRows) != 0 {
		t.Fatalf("expected claimed row hidden from session scope, got %d rows", len(sessRows))
	}
	userRows, _ := st.ListByOwner(ctx, Owner{UserID: "u1"})
	if len(userRows) != 1 {
		t.Fatalf("expected claimed row in user scope, got %d rows", len(userRows))
	}
}

func TestListInProgress_BandIsExclusive(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()

	for media, ratio := range map[string]float64{"low": 0.02, "in": 0.5, "high": 0.95} {
		if _, err := st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: media, Title: media, DurationSeconds: 100, WatchedSeconds: int(ratio * 100), ProgressRatio: ratio}); err != nil {
			t.Fatalf("upsert %s: %v", media, err)
		}
	}

	rows, err := st.ListInProgress(ctx, Owner{SessionID: "s1"}, 0.02, 0.95, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].MediaID != "in" {
		t.Fatalf("expected only the in-band row, got %v", rows)
	}
}

func TestListInProgress_RecencyOrderAndLimit(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, media := range []string{"a", "b", "c"} {
		if _, err := st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: media, Title: media, DurationSeconds: 100, WatchedSeconds: 50, ProgressRatio: 0.5, LastWatchedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("upsert %s: %v", media, err)
		}
	}

	rows, _ := st.ListInProgress(ctx, Owner{SessionID: "s1"}, 0.02, 0.95, 2)
	if len(rows) != 2 {
		t.Fatalf("expected limit applied, got %d rows", len(rows))
	}
	if rows[0].MediaID != "c" || rows[1].MediaID != "b" {
		t.Fatalf("expected [c b], got [%s %s]", rows[0].MediaID, rows[1].MediaID)
	}
}

func TestDelete_ScopedToOwner(t *testing.T) {
	st := NewInMemoryProgressStore()
	ctx := context.Background()

	st.Upsert(ctx, ProgressRecord{SessionID: "s1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 10, ProgressRatio: 0.1})
	st.Upsert(ctx, ProgressRecord{UserID: "u1", MediaID: "m1", Title: "m1", DurationSeconds: 100, WatchedSeconds: 20, ProgressRatio: 0.2})

	if err := st.Delete(ctx, Owner{SessionID: "s1"}, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	userRows, _ := st.ListByOwner(ctx, Owner{UserID: "u1"})
	if len(userRows) != 1 {
		t.Fatalf("expected user row untouched, got %d rows", len(userRows))
	}
	if err := st.Delete(ctx, Owner{SessionID: "s1"}, "m1"); err != nil {
		t.Fatalf("repeat delete should be a no-op: %v", err)
	}
}
