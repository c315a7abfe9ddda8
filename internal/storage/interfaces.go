package storage

import (
	"context"

	"mapcap-ipo/internal/domain"
)

// DefaultHistoryLimit is the largest page returned by list queries.
const DefaultHistoryLimit = 100

// IdentityStore provides access to identity_sessions storage, the cache of
// the last authenticated Pioneer per page session token.
type IdentityStore interface {
	// Save inserts or replaces the record for rec.Token.
	Save(ctx context.Context, rec *domain.IdentityRecord) error

	// Get retrieves the record for token. Returns ErrNotFound if not exists.
	Get(ctx context.Context, token string) (*domain.IdentityRecord, error)

	// Delete removes the record for token. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error
}

// PaymentEventStore provides access to payment_events storage (append-only audit).
type PaymentEventStore interface {
	// Insert appends an event.
	Insert(ctx context.Context, e *domain.PaymentEvent) error

	// GetByUsername retrieves the latest events of a Pioneer, newest first.
	GetByUsername(ctx context.Context, username string, limit int) ([]*domain.PaymentEvent, error)

	// GetByPaymentID retrieves all events of a payment, ordered by recorded_at ASC.
	GetByPaymentID(ctx context.Context, paymentID string) ([]*domain.PaymentEvent, error)
}

// SnapshotStore provides access to metrics_snapshots storage (accepted
// snapshot history).
type SnapshotStore interface {
	// Insert appends an accepted snapshot.
	Insert(ctx context.Context, r *domain.SnapshotRecord) error

	// GetRecent retrieves the latest snapshots of a Pioneer, newest first.
	GetRecent(ctx context.Context, username string, limit int) ([]*domain.SnapshotRecord, error)
}

// NormalizeLimit clamps limit to (0, DefaultHistoryLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}
