package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryProgressStore is a development and test implementation.
// It mirrors the Postgres semantics: upsert keyed by the authoritative
// owner, sticky category, anonymous queries excluding claimed rows.
type InMemoryProgressStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]ProgressRecord
}

func NewInMemoryProgressStore() *InMemoryProgressStore {
	return &InMemoryProgressStore{records: make(map[uuid.UUID]ProgressRecord)}
}

func (s *InMemoryProgressStore) Upsert(_ context.Context, rec ProgressRecord) (ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.LastWatchedAt.IsZero() {
		rec.LastWatchedAt = time.Now().UTC()
	}

	for id, existing := range s.records {
		if existing.MediaID != rec.MediaID {
			continue
		}
		var match bool
		if rec.UserID != "" {
			match = existing.UserID == rec.UserID
		} else {
			match = existing.UserID == "" && existing.SessionID == rec.SessionID
		}
		if !match {
			continue
		}
		existing.Title = rec.Title
		existing.PosterImage = rec.PosterImage
		existing.DurationSeconds = rec.DurationSeconds
		existing.WatchedSeconds = rec.WatchedSeconds
		existing.ProgressRatio = rec.ProgressRatio
		existing.LastWatchedAt = rec.LastWatchedAt
		if rec.Category != "" {
			existing.Category = rec.Category
		}
		s.records[id] = existing
		return existing, nil
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *InMemoryProgressStore) ListInProgress(_ context.Context, owner Owner, low, high float64, limit int) ([]ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProgressRecord
	for _, rec := range s.records {
		if !ownedBy(rec, owner) {
			continue
		}
		if rec.ProgressRatio > low && rec.ProgressRatio < high {
			out = append(out, rec)
		}
	}
	sortByRecency(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryProgressStore) ListByOwner(_ context.Context, owner Owner) ([]ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProgressRecord
	for _, rec := range s.records {
		if ownedBy(rec, owner) {
			out = append(out, rec)
		}
	}
	sortByRecency(out)
	return out, nil
}

func (s *InMemoryProgressStore) Delete(_ context.Context, owner Owner, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if rec.MediaID == mediaID && ownedBy(rec, owner) {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *InMemoryProgressStore) ListBySession(_ context.Context, sessionID string) ([]ProgressRecord, error) {
	return s.ListByOwner(nil, Owner{SessionID: sessionID})
}

func (s *InMemoryProgressStore) GetByUser(_ context.Context, userID, mediaID string) (ProgressRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.UserID == userID && rec.MediaID == mediaID {
			return rec, true, nil
		}
	}
	return ProgressRecord{}, false, nil
}

func (s *InMemoryProgressStore) Claim(_ context.Context, id uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		rec.UserID = userID
		s.records[id] = rec
	}
	return nil
}

func (s *InMemoryProgressStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *InMemoryProgressStore) SetCategory(_ context.Context, id uuid.UUID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		rec.Category = category
		s.records[id] = rec
	}
	return nil
}

func ownedBy(rec ProgressRecord, owner Owner) bool {
	if owner.ByUser() {
		return rec.UserID == owner.UserID
	}
	return rec.UserID == "" && rec.SessionID == owner.SessionID
}

func sortByRecency(recs []ProgressRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastWatchedAt.Equal(recs[j].LastWatchedAt) {
			return recs[i].LastWatchedAt.After(recs[j].LastWatchedAt)
		}
		return recs[i].ID.String() > recs[j].ID.String()
	})
}
