package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapcap-ipo/internal/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres and ClickHouse schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.UseMemory() {
				return errors.New("migrate: " + config.EnvPostgresDSN + " and " + config.EnvClickhouseDSN + " are not set")
			}
			pool, chConn, err := openDatabases(cmd.Context(), cfg.PostgresDSN, cfg.ClickhouseDSN, logger)
			if err != nil {
				return err
			}
			pool.Close()
			if err := chConn.Close(); err != nil {
				logger.Warn("close clickhouse", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
