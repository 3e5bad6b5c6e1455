package document

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommandPostBill is the idempotency command name of PostBill
const CommandPostBill = "bill.post"

// BillLineCommand is one line of PostBillCommand
type BillLineCommand struct {
	Kind        document.LineKind
	ItemID      uuid.UUID
	LocationID  uuid.UUID
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Amount      decimal.Decimal
	AccountID   uuid.UUID
	Description string
}

// PostBillCommand posts a vendor bill
type PostBillCommand struct {
	VendorRef        string
	BillDate         time.Time
	PayableAccountID uuid.UUID
	Lines            []BillLineCommand
}

// BillPostedResponse is the stored and replayed result of PostBill
type BillPostedResponse struct {
	BillID         uuid.UUID   `json:"billId"`
	JournalEntryID uuid.UUID   `json:"journalEntryId"`
	StockMoveIDs   []uuid.UUID `json:"stockMoveIds"`
	TotalAmount    string      `json:"totalAmount"`
	RecalcFromDate *string     `json:"recalcFromDate,omitempty"`
	EventIDs       []uuid.UUID `json:"eventIds"`
	Replayed       bool        `json:"-"`
}

// BillService posts vendor bills
type BillService struct {
	runner
}

// NewBillService creates a new BillService
func NewBillService(deps Deps) *BillService {
	return &BillService{runner: newRunner(deps)}
}

// PostBill creates the bill, its journal entry and one receipt per inventory
// line in a single transaction.
//
// The entry debits each line's account and credits the payable account with
// the bill total. Receipts carry the line cost and link to the entry.
func (s *BillService) PostBill(ctx context.Context, cc shared.CommandContext, cmd PostBillCommand) (*BillPostedResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "BillService", "PostBill",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, cc.TenantID.String()))
	defer span.End()

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	// validate before taking locks or claiming the key
	if _, err := document.NewBill(cc.TenantID, cc.ActorID, cmd.VendorRef, cmd.BillDate, cmd.PayableAccountID, cmd.lineInputs()); err != nil {
		return nil, err
	}

	var keys []inventory.StockKey
	for _, l := range cmd.Lines {
		if l.Kind == document.LineKindInventory {
			keys = append(keys, inventory.StockKey{TenantID: cc.TenantID, LocationID: l.LocationID, ItemID: l.ItemID})
		}
	}

	result, err := s.run(ctx, cc, CommandPostBill, stockLockKeys(keys...), func(ctx context.Context, tx command.Tx) (any, error) {
		return s.postBill(ctx, tx, cc, cmd)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp BillPostedResponse
	if err := result.Decode(&resp); err != nil {
		return nil, err
	}
	resp.EventIDs = result.EventIDs
	resp.Replayed = result.Replayed
	if !result.Replayed {
		s.Metrics.RecordPosting(ctx, cc.TenantID, "bill")
	}
	telemetry.SetOK(span)
	return &resp, nil
}

func (s *BillService) postBill(ctx context.Context, tx command.Tx, cc shared.CommandContext, cmd PostBillCommand) (*BillPostedResponse, error) {
	bill, err := document.NewBill(cc.TenantID, cc.ActorID, cmd.VendorRef, cmd.BillDate, cmd.PayableAccountID, cmd.lineInputs())
	if err != nil {
		return nil, err
	}

	entry, err := s.Posting.Post(ctx, tx, appledger.PostRequest{
		TenantID:      cc.TenantID,
		Date:          bill.BillDate,
		Description:   "Vendor bill " + bill.VendorRef,
		Lines:         billJournalLines(bill),
		SourceType:    "bill",
		SourceID:      &bill.ID,
		CreatedBy:     cc.ActorID,
		CorrelationID: cc.Correlation(),
	})
	if err != nil {
		return nil, err
	}
	bill.LinkJournal(entry.ID)

	resp := &BillPostedResponse{
		BillID:         bill.ID,
		JournalEntryID: entry.ID,
		StockMoveIDs:   []uuid.UUID{},
		TotalAmount:    bill.TotalAmount.StringFixed(2),
	}

	var earliest *time.Time
	for _, line := range bill.InventoryLines() {
		cost := line.UnitCost
		move, err := inventory.NewStockMove(inventory.MoveInput{
			TenantID:      cc.TenantID,
			LocationID:    *line.LocationID,
			ItemID:        *line.ItemID,
			MoveDate:      bill.BillDate,
			Kind:          inventory.MoveKindReceipt,
			Direction:     inventory.DirectionIn,
			Quantity:      line.Quantity,
			UnitCost:      &cost,
			ReferenceType: "bill",
			ReferenceID:   &bill.ID,
			CorrelationID: cc.Correlation(),
			CreatedBy:     cc.ActorID,
		})
		if err != nil {
			return nil, err
		}
		move.LinkJournal(entry.ID)

		applied, err := s.WAC.ApplyMove(ctx, tx, move)
		if err != nil {
			return nil, err
		}
		if !applied.Move.TotalCostApplied.Equal(line.Amount) {
			return nil, shared.NewIntegrityError("RECEIPT_COST_MISMATCH", "receipt value differs from the bill line amount").
				WithDetail("line_no", line.LineNo).
				WithDetail("line_amount", line.Amount.StringFixed(2)).
				WithDetail("move_total", applied.Move.TotalCostApplied.StringFixed(2))
		}
		id := move.ID
		line.StockMoveID = &id
		resp.StockMoveIDs = append(resp.StockMoveIDs, id)

		if _, err := s.afterApply(ctx, tx, cc, applied); err != nil {
			return nil, err
		}
		if applied.RecalcFromDate != nil && (earliest == nil || applied.RecalcFromDate.Before(*earliest)) {
			earliest = applied.RecalcFromDate
		}
	}
	resp.RecalcFromDate = dateString(earliest)

	if err := tx.Bills().Create(ctx, bill); err != nil {
		return nil, fmt.Errorf("create bill: %w", err)
	}
	if err := bill.MarkPosted(cc.Correlation()); err != nil {
		return nil, err
	}
	if err := tx.RecordEvents(ctx, bill.GetDomainEvents()...); err != nil {
		return nil, err
	}
	bill.ClearDomainEvents()

	if err := tx.Audit().Append(ctx, audit.NewLog(audit.Entry{
		TenantID:       cc.TenantID,
		ActorID:        cc.ActorID,
		Action:         audit.ActionBillPosted,
		EntityType:     "bill",
		EntityID:       bill.ID,
		IdempotencyKey: cc.ClientKey,
		CorrelationID:  cc.Correlation(),
		Metadata: map[string]any{
			"vendor_ref":       bill.VendorRef,
			"total_amount":     bill.TotalAmount.StringFixed(2),
			"journal_entry_id": entry.ID,
			"stock_move_ids":   resp.StockMoveIDs,
		},
	})); err != nil {
		return nil, err
	}

	s.Logger.Info("Bill posted",
		zap.String("bill_id", bill.ID.String()),
		zap.String("tenant_id", cc.TenantID.String()),
		zap.String("journal_entry_id", entry.ID.String()),
		zap.String("total", bill.TotalAmount.StringFixed(2)),
		zap.Int("stock_moves", len(resp.StockMoveIDs)))
	return resp, nil
}

// billJournalLines debits each non-zero line and credits the payable with the total
func billJournalLines(b *document.Bill) []appledger.PostLine {
	lines := make([]appledger.PostLine, 0, len(b.Lines)+1)
	for _, l := range b.Lines {
		if l.Amount.IsZero() {
			continue
		}
		role := ledger.AccountTypeExpense
		if l.Kind == document.LineKindInventory {
			role = ledger.AccountTypeAsset
		}
		memo := l.Description
		if memo == "" {
			memo = fmt.Sprintf("%s line %d", b.VendorRef, l.LineNo)
		}
		lines = append(lines, appledger.DebitLine(l.AccountID, role, l.Amount, memo))
	}
	return append(lines, appledger.CreditLine(b.PayableAccountID, ledger.AccountTypeLiability, b.TotalAmount, "Accounts payable "+b.VendorRef))
}

func (c PostBillCommand) lineInputs() []document.BillLineInput {
	out := make([]document.BillLineInput, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = document.BillLineInput{
			Kind:        l.Kind,
			ItemID:      l.ItemID,
			LocationID:  l.LocationID,
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
			Amount:      l.Amount,
			AccountID:   l.AccountID,
			Description: l.Description,
		}
	}
	return out
}
