package recordstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

func setupTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TicketRecord{}, &model.RiskLogRecord{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewGormStore(db), db
}

func pendingRow(code, requester string) model.Row {
	return model.Ticket{
		CreatedAt:   "2023-11-15 06:13:20",
		Alias:       "Budi",
		Age:         30,
		Zone:        "Awayan",
		Question:    "apakah aman?",
		Code:        code,
		Status:      model.TicketStatusPending,
		RequesterID: requester,
	}.Row()
}

func TestGormStore_AppendAndFind(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, pendingRow("K1700000000", "555"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	row, err := s.FindByColumn(ctx, model.ColCode, "K1700000000")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, id, row.ID)
	assert.Equal(t, "Awayan", row.Get(model.ColZone))
	assert.Equal(t, "PENDING", row.Get(model.ColStatus))

	missing, err := s.FindByColumn(ctx, model.ColCode, "K1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGormStore_AppendDuplicateCode(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, pendingRow("K1700000000", "555"))
	require.NoError(t, err)
	_, err = s.Append(ctx, pendingRow("K1700000000", "777"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGormStore_UpdateRange(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, pendingRow("K1700000000", "555"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateRange(ctx, id, []model.Cell{{Col: model.ColQuestion, Value: "baru"}}))
	row, err := s.FindByColumn(ctx, model.ColCode, "K1700000000")
	require.NoError(t, err)
	assert.Equal(t, "baru", row.Get(model.ColQuestion))
	assert.Equal(t, "Budi", row.Get(model.ColAlias), "other columns untouched")

	err = s.UpdateRange(ctx, id+100, []model.Cell{{Col: model.ColQuestion, Value: "x"}})
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)

	err = s.UpdateRange(ctx, id, nil)
	assert.Error(t, err)
	err = s.UpdateRange(ctx, id, []model.Cell{{Col: model.Column(99), Value: "x"}})
	assert.Error(t, err)
}

func TestGormStore_UpdateRangeIf(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, pendingRow("K1700000000", "555"))
	require.NoError(t, err)

	expect := []model.Cell{{Col: model.ColStatus, Value: "PENDING"}}
	set := []model.Cell{{Col: model.ColStatus, Value: "LOCKED"}, {Col: model.ColLockedBy, Value: "op1"}}

	ok, err := s.UpdateRangeIf(ctx, id, expect, set)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateRangeIf(ctx, id, expect, []model.Cell{{Col: model.ColLockedBy, Value: "op2"}})
	require.NoError(t, err)
	assert.False(t, ok, "second writer must lose once status moved on")

	row, err := s.FindByColumn(ctx, model.ColCode, "K1700000000")
	require.NoError(t, err)
	assert.Equal(t, "op1", row.Get(model.ColLockedBy))
}

func TestGormStore_AllRowsOrdered(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"K1", "K2", "K3"} {
		_, err := s.Append(ctx, pendingRow(code, "555"))
		require.NoError(t, err)
	}
	rows, err := s.AllRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "K1", rows[0].Get(model.ColCode))
	assert.Equal(t, "K3", rows[2].Get(model.ColCode))
}

func TestGormStore_AppendRisk(t *testing.T) {
	s, db := setupTestStore(t)

	err := s.AppendRisk(context.Background(), model.RiskEntry{
		Timestamp: "2023-11-15 06:13:20", Alias: "Budi", Age: 30, Score: 4,
		Classification: model.RiskHigh, Zone: "Awayan",
	})
	require.NoError(t, err)

	var recs []model.RiskLogRecord
	require.NoError(t, db.Find(&recs).Error)
	require.Len(t, recs, 1)
	assert.Equal(t, "TINGGI", recs[0].Classification)
	assert.Equal(t, 4, recs[0].Score)
}

func TestGormStore_Unavailable(t *testing.T) {
	s, db := setupTestStore(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = s.AllRows(context.Background())
	assert.True(t, errors.Is(err, errs.ErrStoreUnavailable))
	assert.ErrorIs(t, s.Ping(context.Background()), errs.ErrStoreUnavailable)
}
