package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/config"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StoreBackend != config.BackendPostgres {
			return errors.New("migrate requires the postgres store backend")
		}
		if err := repo.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("database migrated")
		return nil
	},
}
