package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockMoveRepository implements inventory.StockMoveRepository using GORM
type GormStockMoveRepository struct {
	db *gorm.DB
}

// NewGormStockMoveRepository creates a new GormStockMoveRepository
func NewGormStockMoveRepository(db *gorm.DB) *GormStockMoveRepository {
	return &GormStockMoveRepository{db: db}
}

// Create inserts a move. A (key, seq) collision surfaces as ErrDuplicateKey.
func (r *GormStockMoveRepository) Create(ctx context.Context, move *inventory.StockMove) error {
	return translate(r.db.WithContext(ctx).Create(move).Error)
}

// FindByID loads a move within a tenant
func (r *GormStockMoveRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*inventory.StockMove, error) {
	var move inventory.StockMove
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&move).Error; err != nil {
		return nil, translate(err)
	}
	return &move, nil
}

// ListByKey returns every move of the sequence in cost order
func (r *GormStockMoveRepository) ListByKey(ctx context.Context, key inventory.StockKey) ([]*inventory.StockMove, error) {
	var moves []*inventory.StockMove
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND location_id = ? AND item_id = ?", key.TenantID, key.LocationID, key.ItemID).
		Order("move_date ASC, seq ASC").
		Find(&moves).Error; err != nil {
		return nil, err
	}
	return moves, nil
}

type stockKeyRow struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	ItemID     uuid.UUID
}

// FindKeysSince returns the sequences touched on or after from, in lock order
func (r *GormStockMoveRepository) FindKeysSince(ctx context.Context, tenantID uuid.UUID, from time.Time) ([]inventory.StockKey, error) {
	var rows []stockKeyRow
	if err := r.db.WithContext(ctx).
		Model(&inventory.StockMove{}).
		Distinct("tenant_id", "location_id", "item_id").
		Where("tenant_id = ? AND move_date >= ?", tenantID, from).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	keys := make([]inventory.StockKey, len(rows))
	for i, row := range rows {
		keys[i] = inventory.StockKey{TenantID: row.TenantID, LocationID: row.LocationID, ItemID: row.ItemID}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}

// UpdateCost rewrites the applied cost and the journal link of a move
func (r *GormStockMoveRepository) UpdateCost(ctx context.Context, move *inventory.StockMove) error {
	move.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&inventory.StockMove{}).
		Where("tenant_id = ? AND id = ?", move.TenantID, move.ID).
		Updates(map[string]any{
			"unit_cost_applied":  move.UnitCostApplied,
			"total_cost_applied": move.TotalCostApplied,
			"journal_entry_id":   move.JournalEntryID,
			"updated_at":         move.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormStockStateRepository implements inventory.StockStateRepository using GORM
type GormStockStateRepository struct {
	db *gorm.DB
}

// NewGormStockStateRepository creates a new GormStockStateRepository
func NewGormStockStateRepository(db *gorm.DB) *GormStockStateRepository {
	return &GormStockStateRepository{db: db}
}

// EnsureExists inserts an empty state unless the key already has one
func (r *GormStockStateRepository) EnsureExists(ctx context.Context, key inventory.StockKey) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(inventory.NewStockState(key)).Error
}

// FindForUpdate loads and row-locks the state of key
func (r *GormStockStateRepository) FindForUpdate(ctx context.Context, key inventory.StockKey) (*inventory.StockState, error) {
	return r.find(forUpdate(r.db.WithContext(ctx)), key)
}

// Find loads the state of key without locking
func (r *GormStockStateRepository) Find(ctx context.Context, key inventory.StockKey) (*inventory.StockState, error) {
	return r.find(r.db.WithContext(ctx), key)
}

func (r *GormStockStateRepository) find(db *gorm.DB, key inventory.StockKey) (*inventory.StockState, error) {
	var state inventory.StockState
	if err := db.
		Where("tenant_id = ? AND location_id = ? AND item_id = ?", key.TenantID, key.LocationID, key.ItemID).
		First(&state).Error; err != nil {
		return nil, translate(err)
	}
	return &state, nil
}

// Save writes the totals if the stored version still matches, then bumps the version
func (r *GormStockStateRepository) Save(ctx context.Context, state *inventory.StockState) error {
	state.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&inventory.StockState{}).
		Where("tenant_id = ? AND location_id = ? AND item_id = ? AND version = ?",
			state.TenantID, state.LocationID, state.ItemID, state.Version).
		Updates(map[string]any{
			"quantity":       state.Quantity,
			"value":          state.Value,
			"average_cost":   state.AverageCost,
			"last_move_date": state.LastMoveDate,
			"last_seq":       state.LastSeq,
			"version":        state.Version + 1,
			"updated_at":     state.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	state.Version++
	return nil
}

var (
	_ inventory.StockMoveRepository  = (*GormStockMoveRepository)(nil)
	_ inventory.StockStateRepository = (*GormStockStateRepository)(nil)
)
