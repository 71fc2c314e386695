package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"routeledger/internal/infrastructure/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != "postgres" {
			return errors.New("migrate needs storage.driver=postgres")
		}
		poolCfg := postgres.DefaultPoolConfig(cfg.Storage.DSN)
		poolCfg.MinConns = 1
		pool, err := postgres.NewPool(cmd.Context(), poolCfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgres.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
