package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost   string
	HTTPPort  string
	AppEnv    string
	LogLevel  string
	LogFormat string
	// TimeZone is the service-local zone used for ticket timestamps and codes.
	TimeZone string
	// ContentFile overrides the embedded zones/quiz/texts when set.
	ContentFile string

	DB struct {
		Driver     string
		Host       string
		Port       string
		User       string
		Password   string
		Database   string
		SSLMode    string
		SQLitePath string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	SessionTTL time.Duration

	Telegram struct {
		BotToken       string
		OperatorChatID int64
		PollTimeout    int
	}

	KafkaBrokers     []string
	KafkaTopicTicket string
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8097"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
		TimeZone:         getEnv("TZ_NAME", "Asia/Makassar"),
		ContentFile:      getEnv("CONTENT_FILE", ""),
		KafkaBrokers:     ParseList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", "ticket-events"),
	}
	cfg.DB.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "teman_bot")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.DB.SQLitePath = getEnv("SQLITE_PATH", "teman-bot.db")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")

	var err error
	if cfg.Redis.DB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("config: REDIS_DB: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("config: SESSION_TTL: %w", err)
	}

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if v := getEnv("TELEGRAM_OPERATOR_CHAT_ID", ""); v != "" {
		if cfg.Telegram.OperatorChatID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("config: TELEGRAM_OPERATOR_CHAT_ID: %w", err)
		}
	}
	if cfg.Telegram.PollTimeout, err = strconv.Atoi(getEnv("TELEGRAM_POLL_TIMEOUT", "30")); err != nil {
		return nil, fmt.Errorf("config: TELEGRAM_POLL_TIMEOUT: %w", err)
	}
	return cfg, nil
}

// Validate checks settings needed by every command that touches the record store.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DB.Driver)
	}
	return nil
}

// ValidateBot additionally checks the Telegram settings the serve command needs.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Telegram.BotToken == "" {
		return errors.New("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.Telegram.OperatorChatID == 0 {
		return errors.New("config: TELEGRAM_OPERATOR_CHAT_ID is required")
	}
	return nil
}

func (c *Config) DSN() string {
	if c.DB.Driver == "sqlite" {
		return c.DB.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// ParseList splits "a,b, c" into trimmed non-empty items.
func ParseList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
