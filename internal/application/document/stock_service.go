package document

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	appinventory "github.com/erp/ledgercore/internal/application/inventory"
	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Command names of the stock service
const (
	CommandIssueStock       = "stock.issue"
	CommandReceiveStock     = "stock.receive"
	CommandRecalculateStock = "stock.recalculate"
)

// IssueStockCommand takes stock out at the running average cost
type IssueStockCommand struct {
	LocationID uuid.UUID
	ItemID     uuid.UUID
	Quantity   decimal.Decimal
	MoveDate   time.Time
	// Kind is ISSUE unless an ADJUSTMENT or RETURN is recorded
	Kind inventory.MoveKind
	// COGSAccountID is debited; it must be an EXPENSE account
	COGSAccountID uuid.UUID
	// InventoryAccountID is credited; it must be an ASSET account
	InventoryAccountID uuid.UUID
	ReferenceType      string
	ReferenceID        *uuid.UUID
}

// ReceiveStockCommand brings stock in outside of a vendor bill
type ReceiveStockCommand struct {
	LocationID uuid.UUID
	ItemID     uuid.UUID
	Quantity   decimal.Decimal
	// UnitCost nil means at the current average; only RETURN and ADJUSTMENT allow it
	UnitCost           *decimal.Decimal
	MoveDate           time.Time
	Kind               inventory.MoveKind
	InventoryAccountID uuid.UUID
	OffsetAccountID    uuid.UUID
	// OffsetAccountType defaults by kind: LIABILITY for receipts, EXPENSE for
	// returns, INCOME for adjustments
	OffsetAccountType ledger.AccountType
	ReferenceType     string
	ReferenceID       *uuid.UUID
}

// StockMoveResponse is the stored and replayed result of a stock command
type StockMoveResponse struct {
	MoveID         uuid.UUID   `json:"moveId"`
	Seq            int64       `json:"seq"`
	UnitCost       string      `json:"unitCost"`
	TotalCost      string      `json:"totalCost"`
	JournalEntryID *uuid.UUID  `json:"journalEntryId,omitempty"`
	Backdated      bool        `json:"backdated"`
	RecalcFromDate *string     `json:"recalcFromDate,omitempty"`
	Corrections    int         `json:"corrections"`
	EventIDs       []uuid.UUID `json:"eventIds"`
	Replayed       bool        `json:"-"`
}

// RecalculateCommand triggers forward recalculation for a tenant
type RecalculateCommand struct {
	FromDate time.Time
}

// RecalculateResponse is the stored and replayed result of Recalculate
type RecalculateResponse struct {
	Report   *appinventory.RecalcReport `json:"report"`
	EventIDs []uuid.UUID                `json:"eventIds"`
	Replayed bool                       `json:"-"`
}

// StockService records stock moves outside of bills
type StockService struct {
	runner
}

// NewStockService creates a new StockService
func NewStockService(deps Deps) *StockService {
	return &StockService{runner: newRunner(deps)}
}

// IssueStock applies an OUT move and posts Dr COGS / Cr inventory for its cost
func (s *StockService) IssueStock(ctx context.Context, cc shared.CommandContext, cmd IssueStockCommand) (*StockMoveResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "StockService", "IssueStock",
		telemetry.WithAttribute(telemetry.SpanAttrItemID, cmd.ItemID.String()))
	defer span.End()

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cmd.Kind == "" {
		cmd.Kind = inventory.MoveKindIssue
	}
	if cmd.COGSAccountID == uuid.Nil || cmd.InventoryAccountID == uuid.Nil {
		return nil, shared.NewValidationError("ACCOUNT_REQUIRED", "COGS and inventory accounts are required")
	}
	in := inventory.MoveInput{
		TenantID:      cc.TenantID,
		LocationID:    cmd.LocationID,
		ItemID:        cmd.ItemID,
		MoveDate:      cmd.MoveDate,
		Kind:          cmd.Kind,
		Direction:     inventory.DirectionOut,
		Quantity:      cmd.Quantity,
		ReferenceType: cmd.ReferenceType,
		ReferenceID:   cmd.ReferenceID,
		CorrelationID: cc.Correlation(),
		CreatedBy:     cc.ActorID,
	}
	if _, err := inventory.NewStockMove(in); err != nil {
		return nil, err
	}

	key := inventory.StockKey{TenantID: cc.TenantID, LocationID: cmd.LocationID, ItemID: cmd.ItemID}
	result, err := s.run(ctx, cc, CommandIssueStock, stockLockKeys(key), func(ctx context.Context, tx command.Tx) (any, error) {
		move, err := inventory.NewStockMove(in)
		if err != nil {
			return nil, err
		}
		return s.apply(ctx, tx, cc, move, audit.ActionStockIssued, func(m *inventory.StockMove) (*appledger.PostRequest, error) {
			if m.TotalCostApplied.IsZero() {
				return nil, shared.NewValidationError("ZERO_COST_ISSUE", "stock on hand carries no cost; receive it with a cost first").
					WithDetail("item_id", m.ItemID.String())
			}
			return &appledger.PostRequest{
				Lines: []appledger.PostLine{
					appledger.DebitLine(cmd.COGSAccountID, ledger.AccountTypeExpense, m.TotalCostApplied, "Cost of goods issued"),
					appledger.CreditLine(cmd.InventoryAccountID, ledger.AccountTypeAsset, m.TotalCostApplied, "Inventory"),
				},
			}, nil
		})
	})
	return s.finish(ctx, span, cc, result, err)
}

// ReceiveStock applies an IN move and posts Dr inventory / Cr the offset account
func (s *StockService) ReceiveStock(ctx context.Context, cc shared.CommandContext, cmd ReceiveStockCommand) (*StockMoveResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "StockService", "ReceiveStock",
		telemetry.WithAttribute(telemetry.SpanAttrItemID, cmd.ItemID.String()))
	defer span.End()

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cmd.Kind == "" {
		cmd.Kind = inventory.MoveKindReceipt
	}
	if cmd.InventoryAccountID == uuid.Nil || cmd.OffsetAccountID == uuid.Nil {
		return nil, shared.NewValidationError("ACCOUNT_REQUIRED", "inventory and offset accounts are required")
	}
	offsetType := cmd.OffsetAccountType
	if offsetType == "" {
		offsetType = defaultOffsetType(cmd.Kind)
	}
	in := inventory.MoveInput{
		TenantID:      cc.TenantID,
		LocationID:    cmd.LocationID,
		ItemID:        cmd.ItemID,
		MoveDate:      cmd.MoveDate,
		Kind:          cmd.Kind,
		Direction:     inventory.DirectionIn,
		Quantity:      cmd.Quantity,
		UnitCost:      cmd.UnitCost,
		ReferenceType: cmd.ReferenceType,
		ReferenceID:   cmd.ReferenceID,
		CorrelationID: cc.Correlation(),
		CreatedBy:     cc.ActorID,
	}
	if _, err := inventory.NewStockMove(in); err != nil {
		return nil, err
	}

	key := inventory.StockKey{TenantID: cc.TenantID, LocationID: cmd.LocationID, ItemID: cmd.ItemID}
	result, err := s.run(ctx, cc, CommandReceiveStock, stockLockKeys(key), func(ctx context.Context, tx command.Tx) (any, error) {
		move, err := inventory.NewStockMove(in)
		if err != nil {
			return nil, err
		}
		return s.apply(ctx, tx, cc, move, audit.ActionStockReceived, func(m *inventory.StockMove) (*appledger.PostRequest, error) {
			if m.TotalCostApplied.IsZero() {
				return nil, nil
			}
			return &appledger.PostRequest{
				Lines: []appledger.PostLine{
					appledger.DebitLine(cmd.InventoryAccountID, ledger.AccountTypeAsset, m.TotalCostApplied, "Inventory"),
					appledger.CreditLine(cmd.OffsetAccountID, offsetType, m.TotalCostApplied, string(m.Kind)),
				},
			}, nil
		})
	})
	return s.finish(ctx, span, cc, result, err)
}

// Recalculate runs forward recalculation for every sequence of the tenant
// with a move on or after cmd.FromDate
func (s *StockService) Recalculate(ctx context.Context, cc shared.CommandContext, cmd RecalculateCommand) (*RecalculateResponse, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cmd.FromDate.IsZero() {
		return nil, shared.NewValidationError("FROM_DATE_REQUIRED", "from date is required")
	}

	lockKey := command.DocumentLockKey(cc.TenantID, "recalc", cc.TenantID)
	result, err := s.run(ctx, cc, CommandRecalculateStock, []string{lockKey}, func(ctx context.Context, tx command.Tx) (any, error) {
		report, err := s.WAC.RecalcForward(ctx, tx, appinventory.RecalcRequest{
			TenantID:      cc.TenantID,
			FromDate:      cmd.FromDate,
			Actor:         cc.ActorID,
			CorrelationID: cc.Correlation(),
		})
		if err != nil {
			return nil, err
		}
		if err := s.auditCorrections(ctx, tx, cc, report); err != nil {
			return nil, err
		}
		if err := tx.Audit().Append(ctx, audit.NewLog(audit.Entry{
			TenantID:       cc.TenantID,
			ActorID:        cc.ActorID,
			Action:         audit.ActionStockRecalculated,
			EntityType:     "tenant",
			EntityID:       cc.TenantID,
			IdempotencyKey: cc.ClientKey,
			CorrelationID:  cc.Correlation(),
			Metadata: map[string]any{
				"from_date":   report.FromDate,
				"keys":        report.KeysScanned,
				"corrections": len(report.Corrections),
			},
		})); err != nil {
			return nil, err
		}
		s.Metrics.RecordCostCorrections(ctx, cc.TenantID, len(report.Corrections))
		return &RecalculateResponse{Report: report}, nil
	})
	if err != nil {
		return nil, err
	}

	var resp RecalculateResponse
	if err := result.Decode(&resp); err != nil {
		return nil, err
	}
	resp.EventIDs = result.EventIDs
	resp.Replayed = result.Replayed
	return &resp, nil
}

type journalFor func(m *inventory.StockMove) (*appledger.PostRequest, error)

// apply records move, posts the journal built from its applied cost, links
// the two and handles a backdated move
func (s *StockService) apply(ctx context.Context, tx command.Tx, cc shared.CommandContext, move *inventory.StockMove, action string, build journalFor) (*StockMoveResponse, error) {
	applied, err := s.WAC.ApplyMove(ctx, tx, move)
	if err != nil {
		return nil, err
	}

	req, err := build(move)
	if err != nil {
		return nil, err
	}
	if req != nil {
		req.TenantID = cc.TenantID
		req.Date = move.MoveDate
		req.Description = string(move.Kind) + " of item " + move.ItemID.String()
		req.SourceType = "stock_move"
		req.SourceID = &move.ID
		req.CreatedBy = cc.ActorID
		req.CorrelationID = cc.Correlation()
		entry, err := s.Posting.Post(ctx, tx, *req)
		if err != nil {
			return nil, err
		}
		move.LinkJournal(entry.ID)
		if err := tx.StockMoves().UpdateCost(ctx, move); err != nil {
			return nil, err
		}
	}

	report, err := s.afterApply(ctx, tx, cc, applied)
	if err != nil {
		return nil, err
	}

	if err := tx.Audit().Append(ctx, audit.NewLog(audit.Entry{
		TenantID:       cc.TenantID,
		ActorID:        cc.ActorID,
		Action:         action,
		EntityType:     "stock_move",
		EntityID:       move.ID,
		IdempotencyKey: cc.ClientKey,
		CorrelationID:  cc.Correlation(),
		Metadata: map[string]any{
			"item_id":     move.ItemID,
			"location_id": move.LocationID,
			"quantity":    move.Quantity.String(),
			"total_cost":  move.TotalCostApplied.StringFixed(2),
			"backdated":   applied.Backdated(),
		},
	})); err != nil {
		return nil, err
	}

	// a sync recalc may have relinked or re-costed this move
	current, err := tx.StockMoves().FindByID(ctx, cc.TenantID, move.ID)
	if err != nil {
		return nil, err
	}
	resp := &StockMoveResponse{
		MoveID:         current.ID,
		Seq:            current.Seq,
		UnitCost:       current.UnitCostApplied.String(),
		TotalCost:      current.TotalCostApplied.StringFixed(2),
		JournalEntryID: current.JournalEntryID,
		Backdated:      applied.Backdated(),
		RecalcFromDate: dateString(applied.RecalcFromDate),
	}
	if report != nil {
		resp.Corrections = len(report.Corrections)
	}

	s.Logger.Info("Stock move recorded",
		zap.String("move_id", move.ID.String()),
		zap.String("kind", string(move.Kind)),
		zap.String("direction", string(move.Direction)),
		zap.String("total_cost", resp.TotalCost),
		zap.Bool("backdated", resp.Backdated))
	return resp, nil
}

func (s *StockService) finish(ctx context.Context, span trace.Span, cc shared.CommandContext, result *command.Result, err error) (*StockMoveResponse, error) {
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	var resp StockMoveResponse
	if err := result.Decode(&resp); err != nil {
		return nil, err
	}
	resp.EventIDs = result.EventIDs
	resp.Replayed = result.Replayed
	if !result.Replayed && resp.JournalEntryID != nil {
		s.Metrics.RecordPosting(ctx, cc.TenantID, "stock_move")
	}
	telemetry.SetOK(span)
	return &resp, nil
}

func defaultOffsetType(kind inventory.MoveKind) ledger.AccountType {
	switch kind {
	case inventory.MoveKindReturn:
		return ledger.AccountTypeExpense
	case inventory.MoveKindAdjustment:
		return ledger.AccountTypeIncome
	}
	return ledger.AccountTypeLiability
}
