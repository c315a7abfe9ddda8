package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// PaymentEventStore implements storage.PaymentEventStore using PostgreSQL.
type PaymentEventStore struct {
	pool *Pool
}

// NewPaymentEventStore creates a new PaymentEventStore.
func NewPaymentEventStore(pool *Pool) *PaymentEventStore {
	return &PaymentEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PaymentEventStore = (*PaymentEventStore)(nil)

// Insert appends an event.
func (s *PaymentEventStore) Insert(ctx context.Context, e *domain.PaymentEvent) (err error) {
	if e == nil || e.Username == "" || e.Phase == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_payment_event", time.Now(), &err)

	query := `
		INSERT INTO payment_events (
			payment_id, username, amount, phase, txid, detail, recorded_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
	`

	_, err = s.pool.Exec(ctx, query,
		e.PaymentID,
		e.Username,
		e.Amount.String(),
		e.Phase,
		nullString(e.TxID),
		nullString(e.Detail),
		e.RecordedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// GetByUsername retrieves the latest events of a Pioneer, newest first.
func (s *PaymentEventStore) GetByUsername(ctx context.Context, username string, limit int) (_ []*domain.PaymentEvent, err error) {
	defer observe("payment_events_by_username", time.Now(), &err)

	query := `
		SELECT payment_id, username, amount::text, phase, txid, detail, recorded_at
		FROM payment_events
		WHERE username = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, username, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query payment events by username: %w", err)
	}
	defer rows.Close()

	return scanPaymentEvents(rows)
}

// GetByPaymentID retrieves all events of a payment, ordered by recorded_at ASC.
func (s *PaymentEventStore) GetByPaymentID(ctx context.Context, paymentID string) (_ []*domain.PaymentEvent, err error) {
	defer observe("payment_events_by_payment_id", time.Now(), &err)

	query := `
		SELECT payment_id, username, amount::text, phase, txid, detail, recorded_at
		FROM payment_events
		WHERE payment_id = $1
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query payment events by payment id: %w", err)
	}
	defer rows.Close()

	return scanPaymentEvents(rows)
}

// scanPaymentEvents scans multiple rows into PaymentEvents.
func scanPaymentEvents(rows pgx.Rows) ([]*domain.PaymentEvent, error) {
	var events []*domain.PaymentEvent

	for rows.Next() {
		var e domain.PaymentEvent
		var amount string
		var txID, detail *string

		if err := rows.Scan(&e.PaymentID, &e.Username, &amount, &e.Phase, &txID, &detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}

		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
		}
		e.Amount = d
		e.TxID = derefString(txID)
		e.Detail = derefString(detail)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment events: %w", err)
	}

	return events, nil
}
