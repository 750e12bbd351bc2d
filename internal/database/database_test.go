package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestMigrateUp_SQLite(t *testing.T) {
	db, err := Open(DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, MigrateUp(db, DriverSQLite))

	assert.True(t, db.Migrator().HasTable(&model.TicketRecord{}))
	assert.True(t, db.Migrator().HasTable(&model.RiskLogRecord{}))
	assert.True(t, db.Migrator().HasIndex(&model.TicketRecord{}, "Code"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "00001_create_tickets.sql", entries[0].Name())
}
