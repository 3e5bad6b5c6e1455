package inventory

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AverageTolerance bounds the gap between value/quantity and the stored average
var AverageTolerance = decimal.New(1, -shared.CostScale)

// StockState is the running quantity and value of one (tenant, location, item) sequence
type StockState struct {
	TenantID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	LocationID   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ItemID       uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Value        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	AverageCost  decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	LastMoveDate *time.Time      `gorm:"type:date"`
	LastSeq      int64           `gorm:"not null;default:0"`
	Version      int             `gorm:"not null;default:0"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockState) TableName() string {
	return "stock_states"
}

// NewStockState creates an empty state for key
func NewStockState(key StockKey) *StockState {
	return &StockState{
		TenantID:    key.TenantID,
		LocationID:  key.LocationID,
		ItemID:      key.ItemID,
		Quantity:    decimal.Zero,
		Value:       decimal.Zero,
		AverageCost: decimal.Zero,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Key returns the sequence key of the state
func (s *StockState) Key() StockKey {
	return StockKey{TenantID: s.TenantID, LocationID: s.LocationID, ItemID: s.ItemID}
}

// IsBackdated reports whether date precedes the latest applied move
func (s *StockState) IsBackdated(date time.Time) bool {
	return s.LastMoveDate != nil && date.Before(*s.LastMoveDate)
}

// AppliedCost is the cost a move ends up carrying
type AppliedCost struct {
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
}

// Apply advances the running totals by move and returns the cost it carries.
// The move itself is not modified.
//
// OUT moves take the current average. The OUT that empties the sequence takes
// the whole remaining value so rounding residue never outlives the stock.
func (s *StockState) Apply(move *StockMove) (AppliedCost, error) {
	q := move.Quantity
	var applied AppliedCost

	switch move.Direction {
	case DirectionIn:
		unit := s.AverageCost
		if move.CostSource == CostSourceGiven {
			unit = move.UnitCostApplied
		}
		applied.UnitCost = unit
		applied.TotalCost = shared.RoundMoney(q.Mul(unit))
		s.Quantity = s.Quantity.Add(q)
		s.Value = s.Value.Add(applied.TotalCost)
		if s.Quantity.IsPositive() {
			s.AverageCost = shared.RoundCost(s.Value.Div(s.Quantity))
		}

	case DirectionOut:
		if q.GreaterThan(s.Quantity) {
			return AppliedCost{}, shared.ErrInsufficientStock.
				WithMessage("insufficient stock: requested %s, on hand %s", q.String(), s.Quantity.String()).
				WithDetail("item_id", s.ItemID.String()).
				WithDetail("location_id", s.LocationID.String())
		}
		applied.UnitCost = s.AverageCost
		if q.Equal(s.Quantity) {
			applied.TotalCost = s.Value
		} else {
			applied.TotalCost = shared.RoundMoney(q.Mul(s.AverageCost))
		}
		s.Quantity = s.Quantity.Sub(q)
		s.Value = s.Value.Sub(applied.TotalCost)
		if s.Quantity.IsZero() {
			s.Value = decimal.Zero
		} else {
			s.AverageCost = shared.RoundCost(s.Value.Div(s.Quantity))
		}

	default:
		return AppliedCost{}, shared.NewValidationError("INVALID_DIRECTION", "direction must be IN or OUT")
	}

	if s.LastMoveDate == nil || move.MoveDate.After(*s.LastMoveDate) {
		d := move.MoveDate
		s.LastMoveDate = &d
	}
	if move.Seq > s.LastSeq {
		s.LastSeq = move.Seq
	}
	s.UpdatedAt = time.Now().UTC()
	return applied, nil
}

// CopyTotalsFrom overwrites the running totals with those of other
func (s *StockState) CopyTotalsFrom(other *StockState) {
	s.Quantity = other.Quantity
	s.Value = other.Value
	s.AverageCost = other.AverageCost
	if other.LastMoveDate != nil {
		d := *other.LastMoveDate
		s.LastMoveDate = &d
	}
	if other.LastSeq > s.LastSeq {
		s.LastSeq = other.LastSeq
	}
	s.UpdatedAt = time.Now().UTC()
}

// SameTotals reports whether two states carry equal quantity, value and average
func (s *StockState) SameTotals(other *StockState) bool {
	return s.Quantity.Equal(other.Quantity) &&
		s.Value.Equal(other.Value) &&
		s.AverageCost.Sub(other.AverageCost).Abs().LessThanOrEqual(AverageTolerance)
}

// CheckInvariant verifies that value / quantity matches the stored average
func (s *StockState) CheckInvariant() error {
	if s.Quantity.IsNegative() || s.Value.IsNegative() {
		return shared.NewIntegrityError("NEGATIVE_STOCK_STATE", "stock state went negative").
			WithDetail("item_id", s.ItemID.String()).
			WithDetail("quantity", s.Quantity.String()).
			WithDetail("value", s.Value.String())
	}
	if s.Quantity.IsZero() {
		if !s.Value.IsZero() {
			return shared.NewIntegrityError("ORPHAN_STOCK_VALUE", "stock value remains with zero quantity").
				WithDetail("item_id", s.ItemID.String()).
				WithDetail("value", s.Value.String())
		}
		return nil
	}
	avg := s.Value.Div(s.Quantity)
	if avg.Sub(s.AverageCost).Abs().GreaterThan(AverageTolerance) {
		return shared.NewIntegrityError("AVERAGE_COST_DIVERGED", "running average diverged from value / quantity").
			WithDetail("item_id", s.ItemID.String()).
			WithDetail("average_cost", s.AverageCost.String()).
			WithDetail("computed", avg.StringFixed(shared.CostScale))
	}
	return nil
}
