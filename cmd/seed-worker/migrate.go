package main

import (
	"fmt"

	"github.com/seednote/seed-worker/internal/config"
	"github.com/seednote/seed-worker/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the seeds table in the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		if cfg.UsesRestStore() {
			return fmt.Errorf("the %s store driver does not own its schema, set SEED_WORKER_STORE_DRIVER to %s or %s",
				cfg.Store.Driver, config.StoreDriverPgsql, config.StoreDriverSqlite)
		}

		zap.S().Named("main").Info("Initializing data store")
		s, err := newStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = s.Close()
		}()

		if err := s.InitialMigration(); err != nil {
			zap.S().Named("main").Errorw("running initial migration", "error", err)
			return err
		}
		zap.S().Named("main").Info("Db migrated")
		return nil
	},
}
