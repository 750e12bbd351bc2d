package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/biztime"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/config"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/content"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/kafka"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/telegram"
)

var errNoBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// offlineNotifier stands in for Telegram when no bot token is configured: locks still
// succeed (user notice is best-effort) and replies fail as undelivered.
type offlineNotifier struct{}

func (offlineNotifier) NotifyUser(context.Context, string, string) error { return errNoBotToken }

func (offlineNotifier) NotifyOperators(context.Context, service.OperatorNotice) error {
	return errNoBotToken
}

// Desk is the ticket service wired for one-shot operator commands.
type Desk struct {
	*service.TicketService
	close func() error
}

func (d *Desk) Close() error { return d.close() }

func NewDesk(cfg *config.Config, logger *slog.Logger) (*Desk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := biztime.Init(cfg.TimeZone); err != nil {
		return nil, fmt.Errorf("time zone: %w", err)
	}
	c, err := content.Load(cfg.ContentFile)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	db, store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	var notifier service.Notifier = offlineNotifier{}
	if cfg.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(telegram.NewBot(cfg.Telegram.BotToken), cfg.Telegram.OperatorChatID)
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, logger)

	return &Desk{
		TicketService: service.NewTicketService(store, notifier, producer, c.Texts, logger),
		close: func() error {
			var errList []error
			errList = append(errList, producer.Close())
			if sqlDB, err := db.DB(); err == nil {
				errList = append(errList, sqlDB.Close())
			}
			return errors.Join(errList...)
		},
	}, nil
}
