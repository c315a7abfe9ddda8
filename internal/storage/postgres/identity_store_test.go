package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

func TestIdentityStore_SaveAndGet(t *testing.T) {
	pool := setupTestDB(t)

	store := NewIdentityStore(pool)
	ctx := context.Background()

	rec := &domain.IdentityRecord{
		Token:           "tok-1",
		Identity:        domain.Identity{Username: "Eslam-X", UID: "uid-1"},
		AuthenticatedAt: 1704067200000,
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestIdentityStore_SaveUpserts(t *testing.T) {
	pool := setupTestDB(t)

	store := NewIdentityStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.IdentityRecord{
		Token: "tok-1", Identity: domain.Identity{Username: "a"}, AuthenticatedAt: 1,
	}))
	require.NoError(t, store.Save(ctx, &domain.IdentityRecord{
		Token: "tok-1", Identity: domain.Identity{Username: "b", WalletAddress: "GADDR"}, AuthenticatedAt: 2,
	}))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Identity.Username)
	assert.Equal(t, "GADDR", got.Identity.WalletAddress)
	assert.Equal(t, int64(2), got.AuthenticatedAt)
}

func TestIdentityStore_DeleteAndNotFound(t *testing.T) {
	pool := setupTestDB(t)

	store := NewIdentityStore(pool)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Save(ctx, &domain.IdentityRecord{Token: "tok-1", Identity: domain.Identity{Username: "a"}}))
	require.NoError(t, store.Delete(ctx, "tok-1"))

	_, err = store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, store.Delete(ctx, "tok-1"))
}

func TestIdentityStore_InvalidInput(t *testing.T) {
	store := NewIdentityStore(nil)

	err := store.Save(context.Background(), &domain.IdentityRecord{Token: "tok-1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
