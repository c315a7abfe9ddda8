package memory

import (
	"context"
	"sync"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// IdentityStore is an in-memory implementation of storage.IdentityStore.
type IdentityStore struct {
	mu      sync.RWMutex
	byToken map[string]*domain.IdentityRecord
}

// NewIdentityStore creates a new in-memory identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		byToken: make(map[string]*domain.IdentityRecord),
	}
}

// Save inserts or replaces the record for rec.Token.
func (s *IdentityStore) Save(_ context.Context, rec *domain.IdentityRecord) error {
	if rec == nil || rec.Token == "" || rec.Identity.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *rec
	s.byToken[rec.Token] = &recCopy
	return nil
}

// Get retrieves the record for token. Returns ErrNotFound if not exists.
func (s *IdentityStore) Get(_ context.Context, token string) (*domain.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byToken[token]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// Delete removes the record for token.
func (s *IdentityStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byToken, token)
	return nil
}

var _ storage.IdentityStore = (*IdentityStore)(nil)
