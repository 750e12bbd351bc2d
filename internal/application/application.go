package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/biztime"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/config"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/content"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/conversation"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/database"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/handler"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/kafka"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/recordstore"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/router"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/session"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/telegram"
)

// Bot is the serve-mode application: operator HTTP API plus Telegram long polling.
type Bot struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	redis    *redis.Client
	producer *kafka.Producer
	httpSrv  *http.Server
	polling  *telegram.PollingService
}

// NewBot wires every component. Redis is optional: without REDIS_ADDR sessions live in
// memory and the polling offset is not persisted.
func NewBot(cfg *config.Config, logger *slog.Logger) (*Bot, error) {
	if err := cfg.ValidateBot(); err != nil {
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

	a := &Bot{cfg: cfg, logger: logger, db: db}

	var (
		sessions session.Store = session.NewMemoryStore()
		offsets  telegram.OffsetStore
	)
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(context.Background()).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		sessions = session.NewRedisStore(a.redis, cfg.SessionTTL)
		offsets = telegram.NewRedisOffsetStore(a.redis)
	} else {
		logger.Warn("REDIS_ADDR not set: sessions are kept in memory and lost on restart")
	}

	a.producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, logger)

	bot := telegram.NewBot(cfg.Telegram.BotToken)
	notifier := telegram.NewNotifier(bot, cfg.Telegram.OperatorChatID)
	tickets := service.NewTicketService(store, notifier, a.producer, c.Texts, logger)
	machine := conversation.NewMachine(sessions, tickets, store, c, logger)
	updates := telegram.NewHandler(bot, machine, tickets, cfg.Telegram.OperatorChatID, logger)
	a.polling = telegram.NewPollingService(bot, updates, offsets, cfg.Telegram.PollTimeout, logger)

	a.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(handler.NewTicketHandler(tickets, logger), store),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// Run serves HTTP and polls Telegram until ctx is cancelled, then shuts both down.
func (a *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.logger.Info("http server listening", "addr", a.httpSrv.Addr)
	a.logger.Info("endpoints",
		"swagger", base+router.PathSwagger,
		"health", base+router.PathHealth,
		"ready", base+router.PathReady,
		"api", base+"/api/v1/tickets")

	httpErr := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	pollDone := make(chan error, 1)
	go func() { pollDone <- a.polling.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-httpErr:
		if ok {
			runErr = fmt.Errorf("http: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	select {
	case err := <-pollDone:
		if err != nil && !errors.Is(err, context.Canceled) && runErr == nil {
			runErr = fmt.Errorf("polling: %w", err)
		}
	case <-shutdownCtx.Done():
		a.logger.Warn("polling did not stop in time")
	}
	return runErr
}

// Close releases the event producer, redis and the database.
func (a *Bot) Close() error {
	var errList []error
	if a.producer != nil {
		errList = append(errList, a.producer.Close())
	}
	if a.redis != nil {
		errList = append(errList, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errList = append(errList, sqlDB.Close())
		}
	}
	return errors.Join(errList...)
}

// OpenStore connects to the record store database and brings its schema up to date.
func OpenStore(cfg *config.Config) (*gorm.DB, *recordstore.GormStore, error) {
	if cfg.DB.Driver == database.DriverPostgres {
		if err := database.EnsureDatabase(cfg.DatabaseURL()); err != nil {
			return nil, nil, fmt.Errorf("ensure database: %w", err)
		}
	}
	db, err := database.Open(cfg.DB.Driver, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.MigrateUp(db, cfg.DB.Driver); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, recordstore.NewGormStore(db), nil
}
