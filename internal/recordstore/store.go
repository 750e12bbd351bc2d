// Package recordstore is the row-oriented table the bot treats as its database. It knows
// nothing about ticket semantics; columns are addressed by model.Column ordinals.
package recordstore

import (
	"context"
	"errors"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

// ErrDuplicate is returned by Append when a unique column (the ticket code) already exists.
var ErrDuplicate = errors.New("recordstore: duplicate row")

// Store is the ticket table.
type Store interface {
	// FindByColumn returns the first row whose col equals value, or nil when none does.
	FindByColumn(ctx context.Context, col model.Column, value string) (*model.Row, error)
	// Append adds a row and returns its handle.
	Append(ctx context.Context, row model.Row) (uint64, error)
	// UpdateRange overwrites the given cells of one row.
	UpdateRange(ctx context.Context, rowID uint64, cells []model.Cell) error
	// UpdateRangeIf overwrites set only if every cell in expect still holds. It reports
	// whether the write landed.
	UpdateRangeIf(ctx context.Context, rowID uint64, expect, set []model.Cell) (bool, error)
	// AllRows returns every row in insertion order.
	AllRows(ctx context.Context) ([]model.Row, error)
}

// RiskLog is the append-only risk quiz table.
type RiskLog interface {
	AppendRisk(ctx context.Context, entry model.RiskEntry) error
}
