package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/storage"
)

func snapshot(investors int64, prices ...string) domain.MetricsSnapshot {
	m := domain.ZeroSnapshot()
	m.TotalInvestors = investors
	m.TotalPiInvested = decimal.NewFromInt(56700)
	m.UserPiInvested = decimal.RequireFromString("100.5")
	m.UserCapitalGain = domain.DeriveCapitalGain(m.UserPiInvested)
	m.SpotPrice = decimal.RequireFromString("0.0001")
	for _, p := range prices {
		m.DailyPrices = append(m.DailyPrices, decimal.RequireFromString(p))
	}
	return m
}

func TestSnapshotStore_InsertAndGetRecent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.SnapshotRecord{Username: "alice", ObservedAt: 1000, Snapshot: snapshot(150, "10", "12.5")}))
	whale := snapshot(151, "10", "12.5", "15")
	whale.IsWhale = true
	require.NoError(t, store.Insert(ctx, &domain.SnapshotRecord{Username: "alice", ObservedAt: 2000, Snapshot: whale}))
	require.NoError(t, store.Insert(ctx, &domain.SnapshotRecord{Username: "bob", ObservedAt: 3000, Snapshot: snapshot(1)}))

	got, err := store.GetRecent(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	latest := got[0]
	assert.Equal(t, int64(2000), latest.ObservedAt)
	assert.Equal(t, int64(151), latest.Snapshot.TotalInvestors)
	assert.True(t, latest.Snapshot.IsWhale)
	assert.True(t, latest.Snapshot.UserCapitalGain.Equal(decimal.RequireFromString("120.6")))
	assert.True(t, latest.Snapshot.SpotPrice.Equal(decimal.RequireFromString("0.0001")))
	require.Len(t, latest.Snapshot.DailyPrices, 3)
	assert.True(t, latest.Snapshot.DailyPrices[1].Equal(decimal.RequireFromString("12.5")))

	assert.Equal(t, int64(1000), got[1].ObservedAt)
}

func TestSnapshotStore_EmptyPrices(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.SnapshotRecord{Username: "alice", ObservedAt: 1, Snapshot: domain.ZeroSnapshot()}))

	got, err := store.GetRecent(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Snapshot.DailyPrices)
	assert.Empty(t, got[0].Snapshot.DailyPrices)
}

func TestSnapshotStore_InvalidInput(t *testing.T) {
	store := NewSnapshotStore(nil)

	err := store.Insert(context.Background(), &domain.SnapshotRecord{Snapshot: domain.ZeroSnapshot()})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
