package memory

import (
	"context"
	"sync"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// Only the newest DefaultHistoryLimit snapshots per Pioneer are retained.
type SnapshotStore struct {
	mu         sync.RWMutex
	byUsername map[string][]*domain.SnapshotRecord // oldest first
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byUsername: make(map[string][]*domain.SnapshotRecord),
	}
}

// Insert appends an accepted snapshot.
func (s *SnapshotStore) Insert(_ context.Context, r *domain.SnapshotRecord) error {
	if r == nil || r.Username == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := domain.SnapshotRecord{
		Username:   r.Username,
		ObservedAt: r.ObservedAt,
		Snapshot:   r.Snapshot.Clone(),
	}
	records := append(s.byUsername[r.Username], &recCopy)
	if len(records) > storage.DefaultHistoryLimit {
		records = records[len(records)-storage.DefaultHistoryLimit:]
	}
	s.byUsername[r.Username] = records
	return nil
}

// GetRecent retrieves the latest snapshots of a Pioneer, newest first.
func (s *SnapshotStore) GetRecent(_ context.Context, username string, limit int) ([]*domain.SnapshotRecord, error) {
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byUsername[username]
	var result []*domain.SnapshotRecord
	for i := len(records) - 1; i >= 0 && len(result) < limit; i-- {
		recCopy := domain.SnapshotRecord{
			Username:   records[i].Username,
			ObservedAt: records[i].ObservedAt,
			Snapshot:   records[i].Snapshot.Clone(),
		}
		result = append(result, &recCopy)
	}
	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
