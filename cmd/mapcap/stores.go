package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mapcap-ipo/internal/storage"
	chstore "mapcap-ipo/internal/storage/clickhouse"
	"mapcap-ipo/internal/storage/memory"
	"mapcap-ipo/internal/storage/migrations"
	pgstore "mapcap-ipo/internal/storage/postgres"
)

// stores holds the storage used by the dashboard.
type stores struct {
	identities storage.IdentityStore
	events     storage.PaymentEventStore
	history    storage.SnapshotStore
}

// createStores opens Postgres and ClickHouse, applying migrations, or falls
// back to in-memory stores when neither DSN is configured.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *zap.Logger) (*stores, func(), error) {
	if useMemory {
		logger.Warn("no database configured, using in-memory stores")
		s := &stores{
			identities: memory.NewIdentityStore(),
			events:     memory.NewPaymentEventStore(),
			history:    memory.NewSnapshotStore(),
		}
		return s, func() {}, nil
	}

	pool, chConn, err := openDatabases(ctx, postgresDSN, clickhouseDSN, logger)
	if err != nil {
		return nil, nil, err
	}

	s := &stores{
		identities: pgstore.NewIdentityStore(pool),
		events:     pgstore.NewPaymentEventStore(pool),
		history:    chstore.NewSnapshotStore(chConn),
	}

	cleanup := func() {
		pool.Close()
		if err := chConn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
	}
	return s, cleanup, nil
}

// openDatabases connects both databases and brings their schemas up to date.
func openDatabases(ctx context.Context, postgresDSN, clickhouseDSN string, logger *zap.Logger) (*pgstore.Pool, *chstore.Conn, error) {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info("postgres schema ready", zap.Int("applied", len(applied)))

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	logger.Info("clickhouse schema ready")

	return pool, chConn, nil
}
