package memory

import (
	"context"
	"sort"
	"sync"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// PaymentEventStore is an in-memory implementation of storage.PaymentEventStore.
type PaymentEventStore struct {
	mu     sync.RWMutex
	events []*domain.PaymentEvent // insertion order
}

// NewPaymentEventStore creates a new in-memory payment event store.
func NewPaymentEventStore() *PaymentEventStore {
	return &PaymentEventStore{}
}

// Insert appends an event.
func (s *PaymentEventStore) Insert(_ context.Context, e *domain.PaymentEvent) error {
	if e == nil || e.Username == "" || e.Phase == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eventCopy := *e
	s.events = append(s.events, &eventCopy)
	return nil
}

// GetByUsername retrieves the latest events of a Pioneer, newest first.
func (s *PaymentEventStore) GetByUsername(_ context.Context, username string, limit int) ([]*domain.PaymentEvent, error) {
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PaymentEvent
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		if s.events[i].Username == username {
			eventCopy := *s.events[i]
			result = append(result, &eventCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt > result[j].RecordedAt
	})
	return result, nil
}

// GetByPaymentID retrieves all events of a payment, ordered by recorded_at ASC.
func (s *PaymentEventStore) GetByPaymentID(_ context.Context, paymentID string) ([]*domain.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PaymentEvent
	for _, e := range s.events {
		if e.PaymentID == paymentID {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt < result[j].RecordedAt
	})
	return result, nil
}

var _ storage.PaymentEventStore = (*PaymentEventStore)(nil)
