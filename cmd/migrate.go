package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/application"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/config"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)
	db, _, err := application.OpenStore(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	log.Info("migrate up: ok", "driver", cfg.DB.Driver)
	return nil
}
