package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert appends an accepted snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, r *domain.SnapshotRecord) (err error) {
	if r == nil || r.Username == "" || r.Snapshot.TotalInvestors < 0 {
		return storage.ErrInvalidInput
	}
	defer observe("insert_snapshot", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO metrics_snapshots (
			username, observed_at, total_investors, total_pi_invested,
			user_pi_invested, user_capital_gain, daily_prices, spot_price, is_whale
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	m := r.Snapshot
	prices := m.DailyPrices
	if prices == nil {
		prices = []decimal.Decimal{}
	}
	err = batch.Append(
		r.Username, uint64(r.ObservedAt), uint64(m.TotalInvestors), m.TotalPiInvested,
		m.UserPiInvested, m.UserCapitalGain, prices, m.SpotPrice, m.IsWhale,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRecent retrieves the latest snapshots of a Pioneer, newest first.
func (s *SnapshotStore) GetRecent(ctx context.Context, username string, limit int) (_ []*domain.SnapshotRecord, err error) {
	defer observe("recent_snapshots", time.Now(), &err)

	query := `
		SELECT username, observed_at, total_investors, total_pi_invested,
			user_pi_invested, user_capital_gain, daily_prices, spot_price, is_whale
		FROM metrics_snapshots
		WHERE username = ?
		ORDER BY observed_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, username, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshots scans multiple rows.
func scanSnapshots(rows chRows) ([]*domain.SnapshotRecord, error) {
	var records []*domain.SnapshotRecord

	for rows.Next() {
		var r domain.SnapshotRecord
		var observedAt, investors uint64

		err := rows.Scan(
			&r.Username, &observedAt, &investors, &r.Snapshot.TotalPiInvested,
			&r.Snapshot.UserPiInvested, &r.Snapshot.UserCapitalGain, &r.Snapshot.DailyPrices,
			&r.Snapshot.SpotPrice, &r.Snapshot.IsWhale,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		r.ObservedAt = int64(observedAt)
		r.Snapshot.TotalInvestors = int64(investors)
		if r.Snapshot.DailyPrices == nil {
			r.Snapshot.DailyPrices = []decimal.Decimal{}
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return records, nil
}
