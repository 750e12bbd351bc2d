package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/application"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/config"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the operator HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	app, err := application.NewBot(cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("shutdown: close resources", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}
