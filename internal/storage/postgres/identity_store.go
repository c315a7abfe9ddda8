package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

// IdentityStore implements storage.IdentityStore using PostgreSQL.
type IdentityStore struct {
	pool *Pool
}

// NewIdentityStore creates a new IdentityStore.
func NewIdentityStore(pool *Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.IdentityStore = (*IdentityStore)(nil)

// Save inserts or replaces the record for rec.Token.
func (s *IdentityStore) Save(ctx context.Context, rec *domain.IdentityRecord) (err error) {
	if rec == nil || rec.Token == "" || rec.Identity.IsZero() {
		return storage.ErrInvalidInput
	}
	defer observe("save_identity", time.Now(), &err)

	query := `
		INSERT INTO identity_sessions (
			token, username, wallet_address, uid, authenticated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO UPDATE SET
			username = EXCLUDED.username,
			wallet_address = EXCLUDED.wallet_address,
			uid = EXCLUDED.uid,
			authenticated_at = EXCLUDED.authenticated_at,
			updated_at = now()
	`

	_, err = s.pool.Exec(ctx, query,
		rec.Token,
		rec.Identity.Username,
		nullString(rec.Identity.WalletAddress),
		nullString(rec.Identity.UID),
		rec.AuthenticatedAt,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Get retrieves the record for token. Returns ErrNotFound if not exists.
func (s *IdentityStore) Get(ctx context.Context, token string) (_ *domain.IdentityRecord, err error) {
	defer observe("get_identity", time.Now(), &err)

	query := `
		SELECT token, username, wallet_address, uid, authenticated_at
		FROM identity_sessions
		WHERE token = $1
	`

	rec, err := scanIdentityRecord(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return rec, nil
}

// Delete removes the record for token.
func (s *IdentityStore) Delete(ctx context.Context, token string) (err error) {
	defer observe("delete_identity", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM identity_sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func scanIdentityRecord(row pgx.Row) (*domain.IdentityRecord, error) {
	var rec domain.IdentityRecord
	var walletAddress, uid *string

	err := row.Scan(
		&rec.Token,
		&rec.Identity.Username,
		&walletAddress,
		&uid,
		&rec.AuthenticatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Identity.WalletAddress = derefString(walletAddress)
	rec.Identity.UID = derefString(uid)
	return &rec, nil
}
