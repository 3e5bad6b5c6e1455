package inventory

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeStockItem is the aggregate type of inventory events
const AggregateTypeStockItem = "StockItem"

// Event type constants
const (
	EventTypeStockMoveRecorded    = "stock.move.recorded"
	EventTypeStockRecalcRequested = "stock.recalc.requested"
	EventTypeStockCostCorrected   = "stock.cost.corrected"
)

// StockMoveRecordedEvent is raised when a move is applied
type StockMoveRecordedEvent struct {
	shared.BaseDomainEvent
	MoveID         uuid.UUID       `json:"moveId"`
	LocationID     uuid.UUID       `json:"locationId"`
	ItemID         uuid.UUID       `json:"itemId"`
	MoveDate       string          `json:"moveDate"`
	Seq            int64           `json:"seq"`
	Kind           MoveKind        `json:"kind"`
	Direction      Direction       `json:"direction"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	JournalEntryID *uuid.UUID      `json:"journalEntryId,omitempty"`
	Backdated      bool            `json:"backdated"`
}

// NewStockMoveRecordedEvent creates a new StockMoveRecordedEvent
func NewStockMoveRecordedEvent(m *StockMove, backdated bool) *StockMoveRecordedEvent {
	ev := &StockMoveRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockMoveRecorded, AggregateTypeStockItem, m.ItemID, m.TenantID),
		MoveID:          m.ID,
		LocationID:      m.LocationID,
		ItemID:          m.ItemID,
		MoveDate:        m.MoveDate.Format(time.DateOnly),
		Seq:             m.Seq,
		Kind:            m.Kind,
		Direction:       m.Direction,
		Quantity:        m.Quantity,
		UnitCost:        m.UnitCostApplied,
		TotalCost:       m.TotalCostApplied,
		JournalEntryID:  m.JournalEntryID,
		Backdated:       backdated,
	}
	ev.Correlate(m.CorrelationID, "")
	return ev
}

// StockRecalcRequestedEvent asks a consumer to recalculate a tenant's costs
// forward from a date
type StockRecalcRequestedEvent struct {
	shared.BaseDomainEvent
	FromDate   string    `json:"fromDate"`
	LocationID uuid.UUID `json:"locationId"`
	ItemID     uuid.UUID `json:"itemId"`
	TriggerID  uuid.UUID `json:"triggerMoveId"`
}

// NewStockRecalcRequestedEvent creates a request triggered by move m
func NewStockRecalcRequestedEvent(m *StockMove, fromDate time.Time) *StockRecalcRequestedEvent {
	ev := &StockRecalcRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockRecalcRequested, AggregateTypeStockItem, m.ItemID, m.TenantID),
		FromDate:        fromDate.Format(time.DateOnly),
		LocationID:      m.LocationID,
		ItemID:          m.ItemID,
		TriggerID:       m.ID,
	}
	ev.Correlate(m.CorrelationID, m.ID.String())
	return ev
}

// StockCostCorrectedEvent is raised when recalculation rewrites a move's cost
type StockCostCorrectedEvent struct {
	shared.BaseDomainEvent
	MoveID          uuid.UUID       `json:"moveId"`
	LocationID      uuid.UUID       `json:"locationId"`
	ItemID          uuid.UUID       `json:"itemId"`
	OldUnitCost     decimal.Decimal `json:"oldUnitCost"`
	NewUnitCost     decimal.Decimal `json:"newUnitCost"`
	OldTotalCost    decimal.Decimal `json:"oldTotalCost"`
	NewTotalCost    decimal.Decimal `json:"newTotalCost"`
	OriginalEntryID *uuid.UUID      `json:"originalEntryId,omitempty"`
	ReversalEntryID *uuid.UUID      `json:"reversalEntryId,omitempty"`
	RepostEntryID   *uuid.UUID      `json:"repostEntryId,omitempty"`
}

// NewStockCostCorrectedEvent creates a new StockCostCorrectedEvent
func NewStockCostCorrectedEvent(m *StockMove, old AppliedCost, correlationID string) *StockCostCorrectedEvent {
	ev := &StockCostCorrectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCostCorrected, AggregateTypeStockItem, m.ItemID, m.TenantID),
		MoveID:          m.ID,
		LocationID:      m.LocationID,
		ItemID:          m.ItemID,
		OldUnitCost:     old.UnitCost,
		NewUnitCost:     m.UnitCostApplied,
		OldTotalCost:    old.TotalCost,
		NewTotalCost:    m.TotalCostApplied,
	}
	ev.Correlate(correlationID, m.ID.String())
	return ev
}
