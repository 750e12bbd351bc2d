package database

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	adminURL := u.String()
	db, err := sql.Open("postgres", adminURL)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	slog.Info("database: created", "name", dbName)
	return nil
}

// EnsureDatabase creates the postgres database named in databaseURL when it is missing.
func EnsureDatabase(databaseURL string) error {
	return ensureDatabase(databaseURL)
}

// MigrateUp brings the schema up to date. Postgres runs the embedded goose migrations;
// sqlite (local runs, tests) uses gorm AutoMigrate on the same models.
func MigrateUp(db *gorm.DB, driver string) error {
	if driver == DriverSQLite {
		if err := db.AutoMigrate(&model.TicketRecord{}, &model.RiskLogRecord{}); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	from, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	to, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}
	if from == to {
		slog.Info("migrate: no pending migrations", "version", to)
	} else {
		slog.Info("migrate: up ok", "from_version", from, "to_version", to)
	}
	return nil
}
