package inventory

import (
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoveKind is the business reason of a stock move
type MoveKind string

const (
	// MoveKindReceipt brings goods in from a supplier
	MoveKindReceipt MoveKind = "RECEIPT"
	// MoveKindIssue takes goods out for sale or consumption
	MoveKindIssue MoveKind = "ISSUE"
	// MoveKindReturn reverses a prior receipt or issue
	MoveKindReturn MoveKind = "RETURN"
	// MoveKindAdjustment corrects counted quantity
	MoveKindAdjustment MoveKind = "ADJUSTMENT"
)

// IsValid returns true if the move kind is known
func (k MoveKind) IsValid() bool {
	switch k {
	case MoveKindReceipt, MoveKindIssue, MoveKindReturn, MoveKindAdjustment:
		return true
	}
	return false
}

// Direction says whether a move adds or removes stock
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// IsValid returns true if the direction is IN or OUT
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// CostSource records where a move's unit cost comes from.
// GIVEN costs are fixed by the caller; AVERAGE costs are read from the running
// average and may be rewritten by forward recalculation.
type CostSource string

const (
	CostSourceGiven   CostSource = "GIVEN"
	CostSourceAverage CostSource = "AVERAGE"
)

// StockKey identifies one running cost sequence
type StockKey struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	ItemID     uuid.UUID
}

// LockKey returns the resource locker key for the sequence
func (k StockKey) LockKey() string {
	return fmt.Sprintf("stock:%s:%s:%s", k.TenantID, k.LocationID, k.ItemID)
}

// Less orders keys deterministically for lock acquisition
func (k StockKey) Less(o StockKey) bool {
	if k.TenantID != o.TenantID {
		return k.TenantID.String() < o.TenantID.String()
	}
	if k.LocationID != o.LocationID {
		return k.LocationID.String() < o.LocationID.String()
	}
	return k.ItemID.String() < o.ItemID.String()
}

// StockMove is an append-only inventory movement.
// Only the applied cost and the journal link are ever rewritten, by recalculation.
type StockMove struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_move_seq,priority:1;uniqueIndex:uq_stock_move_seq,priority:1"`
	LocationID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_move_seq,priority:2;uniqueIndex:uq_stock_move_seq,priority:2"`
	ItemID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_move_seq,priority:3;uniqueIndex:uq_stock_move_seq,priority:3"`
	MoveDate         time.Time       `gorm:"type:date;not null;index:idx_stock_move_seq,priority:4"`
	Seq              int64           `gorm:"not null;index:idx_stock_move_seq,priority:5;uniqueIndex:uq_stock_move_seq,priority:4"`
	Kind             MoveKind        `gorm:"type:varchar(20);not null"`
	Direction        Direction       `gorm:"type:varchar(3);not null"`
	CostSource       CostSource      `gorm:"type:varchar(10);not null"`
	Quantity         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitCostApplied  decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	TotalCostApplied decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ReferenceType    string          `gorm:"type:varchar(50)"`
	ReferenceID      *uuid.UUID      `gorm:"type:uuid;index"`
	CorrelationID    string          `gorm:"type:varchar(100)"`
	JournalEntryID   *uuid.UUID      `gorm:"type:uuid;index"`
	CreatedBy        uuid.UUID       `gorm:"type:uuid"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockMove) TableName() string {
	return "stock_moves"
}

// Key returns the running cost sequence the move belongs to
func (m *StockMove) Key() StockKey {
	return StockKey{TenantID: m.TenantID, LocationID: m.LocationID, ItemID: m.ItemID}
}

// SignedQuantity returns the quantity with OUT moves negated
func (m *StockMove) SignedQuantity() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// LinkJournal records the entry carrying the move's ledger impact
func (m *StockMove) LinkJournal(entryID uuid.UUID) {
	m.JournalEntryID = &entryID
	m.UpdatedAt = time.Now().UTC()
}

// MoveInput describes a move to record
type MoveInput struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	ItemID     uuid.UUID
	MoveDate   time.Time
	Kind       MoveKind
	Direction  Direction
	Quantity   decimal.Decimal
	// UnitCost is required for IN receipts. Nil means "at current average",
	// which is only allowed for IN returns and adjustments.
	UnitCost      *decimal.Decimal
	ReferenceType string
	ReferenceID   *uuid.UUID
	CorrelationID string
	CreatedBy     uuid.UUID
}

// NewStockMove validates the input and builds an unapplied move
func NewStockMove(in MoveInput) (*StockMove, error) {
	if in.TenantID == uuid.Nil || in.LocationID == uuid.Nil || in.ItemID == uuid.Nil {
		return nil, shared.NewValidationError("STOCK_KEY_REQUIRED", "tenant, location and item are required")
	}
	if in.MoveDate.IsZero() {
		return nil, shared.NewValidationError("MOVE_DATE_REQUIRED", "move date is required")
	}
	if !in.Kind.IsValid() {
		return nil, shared.NewValidationError("INVALID_MOVE_KIND", "unknown move kind "+string(in.Kind))
	}
	if !in.Direction.IsValid() {
		return nil, shared.NewValidationError("INVALID_DIRECTION", "direction must be IN or OUT")
	}
	if !in.Quantity.IsPositive() {
		return nil, shared.NewValidationError("INVALID_QUANTITY", "quantity must be positive")
	}
	if !shared.IsQuantity(in.Quantity) {
		return nil, shared.NewValidationError("QUANTITY_PRECISION", "quantity has more than four decimal places")
	}
	if in.Kind == MoveKindReceipt && in.Direction != DirectionIn {
		return nil, shared.NewValidationError("INVALID_DIRECTION", "receipts must be IN moves")
	}
	if in.Kind == MoveKindIssue && in.Direction != DirectionOut {
		return nil, shared.NewValidationError("INVALID_DIRECTION", "issues must be OUT moves")
	}

	source := CostSourceAverage
	unitCost := decimal.Zero
	switch {
	case in.Direction == DirectionOut:
		if in.UnitCost != nil {
			return nil, shared.NewValidationError("UNIT_COST_NOT_ALLOWED", "OUT moves are costed at the running average")
		}
	case in.UnitCost != nil:
		if in.UnitCost.IsNegative() {
			return nil, shared.NewValidationError("INVALID_UNIT_COST", "unit cost cannot be negative")
		}
		source = CostSourceGiven
		unitCost = shared.RoundCost(*in.UnitCost)
	case in.Kind == MoveKindReceipt:
		return nil, shared.NewValidationError("UNIT_COST_REQUIRED", "receipts need a unit cost")
	}

	now := time.Now().UTC()
	y, mo, d := in.MoveDate.UTC().Date()
	return &StockMove{
		ID:              uuid.New(),
		TenantID:        in.TenantID,
		LocationID:      in.LocationID,
		ItemID:          in.ItemID,
		MoveDate:        time.Date(y, mo, d, 0, 0, 0, 0, time.UTC),
		Kind:            in.Kind,
		Direction:       in.Direction,
		CostSource:      source,
		Quantity:        in.Quantity,
		UnitCostApplied: unitCost,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		CorrelationID:   in.CorrelationID,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
