package recordstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

// GormStore keeps the ticket and risk tables in a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByColumn(ctx context.Context, col model.Column, value string) (*model.Row, error) {
	if !col.Valid() {
		return nil, fmt.Errorf("recordstore: invalid column %d", col)
	}
	var rec model.TicketRecord
	err := s.db.WithContext(ctx).
		Where(col.Name()+" = ?", value).
		Order("id ASC").
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, unavailable("find", err)
	}
	row := rec.ToRow()
	return &row, nil
}

func (s *GormStore) Append(ctx context.Context, row model.Row) (uint64, error) {
	rec := model.TicketRecordFromRow(row)
	rec.ID = 0
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrDuplicate
		}
		return 0, unavailable("append", err)
	}
	return rec.ID, nil
}

func (s *GormStore) UpdateRange(ctx context.Context, rowID uint64, cells []model.Cell) error {
	changes, err := cellMap(cells)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&model.TicketRecord{}).Where("id = ?", rowID).Updates(changes)
	if res.Error != nil {
		return unavailable("update", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("recordstore: row %d: %w", rowID, errs.ErrTicketNotFound)
	}
	return nil
}

func (s *GormStore) UpdateRangeIf(ctx context.Context, rowID uint64, expect, set []model.Cell) (bool, error) {
	changes, err := cellMap(set)
	if err != nil {
		return false, err
	}
	tx := s.db.WithContext(ctx).Model(&model.TicketRecord{}).Where("id = ?", rowID)
	for _, c := range expect {
		if !c.Col.Valid() {
			return false, fmt.Errorf("recordstore: invalid column %d", c.Col)
		}
		tx = tx.Where(c.Col.Name()+" = ?", c.Value)
	}
	res := tx.Updates(changes)
	if res.Error != nil {
		return false, unavailable("conditional update", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) AllRows(ctx context.Context) ([]model.Row, error) {
	var recs []model.TicketRecord
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, unavailable("scan", err)
	}
	rows := make([]model.Row, len(recs))
	for i := range recs {
		rows[i] = recs[i].ToRow()
	}
	return rows, nil
}

func (s *GormStore) AppendRisk(ctx context.Context, e model.RiskEntry) error {
	rec := &model.RiskLogRecord{
		Timestamp:      e.Timestamp,
		Alias:          e.Alias,
		Age:            e.Age,
		Score:          e.Score,
		Classification: string(e.Classification),
		Zone:           e.Zone,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return unavailable("append risk", err)
	}
	return nil
}

// Ping checks the connection; used by /ready.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func cellMap(cells []model.Cell) (map[string]interface{}, error) {
	if len(cells) == 0 {
		return nil, errors.New("recordstore: no cells to update")
	}
	changes := make(map[string]interface{}, len(cells))
	for _, c := range cells {
		if !c.Col.Valid() {
			return nil, fmt.Errorf("recordstore: invalid column %d", c.Col)
		}
		changes[c.Col.Name()] = c.Value
	}
	return changes, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("recordstore %s: %w: %v", op, errs.ErrStoreUnavailable, err)
}
