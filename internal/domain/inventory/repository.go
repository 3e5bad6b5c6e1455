package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StockMoveRepository persists stock moves
type StockMoveRepository interface {
	// Create inserts a move
	Create(ctx context.Context, move *StockMove) error

	// FindByID loads a move within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*StockMove, error)

	// ListByKey returns every move of the sequence ordered by (move_date, seq)
	ListByKey(ctx context.Context, key StockKey) ([]*StockMove, error)

	// FindKeysSince returns the sequences with at least one move on or after from
	FindKeysSince(ctx context.Context, tenantID uuid.UUID, from time.Time) ([]StockKey, error)

	// UpdateCost rewrites the applied cost and journal link of a move
	UpdateCost(ctx context.Context, move *StockMove) error
}

// StockStateRepository persists running stock states
type StockStateRepository interface {
	// EnsureExists inserts an empty state for key unless one exists
	EnsureExists(ctx context.Context, key StockKey) error

	// FindForUpdate loads and row-locks the state of key
	FindForUpdate(ctx context.Context, key StockKey) (*StockState, error)

	// Find loads the state of key without locking
	Find(ctx context.Context, key StockKey) (*StockState, error)

	// Save writes the state, failing with ErrConcurrencyConflict on a stale version
	Save(ctx context.Context, state *StockState) error
}
