package main

import (
	"errors"
	"log/slog"

	"github.com/Ampplex/InfluencerFlow-sub001/config"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the contracts table and indexes in Postgres",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.Store.Driver != config.DriverPostgres {
		return errors.New("migrate requires store.driver: postgres")
	}
	if cfg.Store.DatabaseURL == "" {
		return errors.New("store.database_url is required (or set " + config.EnvDatabaseURL + ")")
	}

	_, closeStore, err := openStore(cmd.Context(), &cfg.Store, true)
	if err != nil {
		return err
	}
	closeStore()

	slog.Info("schema is up to date")
	return nil
}
