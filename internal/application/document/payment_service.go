package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommandPayBill is the idempotency command name of PayBill
const CommandPayBill = "bill.pay"

// PayBillCommand applies a payment to a posted bill
type PayBillCommand struct {
	BillID        uuid.UUID
	Amount        decimal.Decimal
	PaymentDate   time.Time
	CashAccountID uuid.UUID
}

// PaymentRecordedResponse is the stored and replayed result of PayBill
type PaymentRecordedResponse struct {
	PaymentID         uuid.UUID           `json:"paymentId"`
	BillID            uuid.UUID           `json:"billId"`
	JournalEntryID    uuid.UUID           `json:"journalEntryId"`
	Amount            string              `json:"amount"`
	OutstandingAmount string              `json:"outstandingAmount"`
	Status            document.BillStatus `json:"status"`
	EventIDs          []uuid.UUID         `json:"eventIds"`
	Replayed          bool                `json:"-"`
}

// PaymentService records bill payments
type PaymentService struct {
	runner
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(deps Deps) *PaymentService {
	return &PaymentService{runner: newRunner(deps)}
}

// PayBill locks the bill row, checks the amount against the remaining
// balance and posts Dr payable / Cr cash. A rejected payment writes nothing.
func (s *PaymentService) PayBill(ctx context.Context, cc shared.CommandContext, cmd PayBillCommand) (*PaymentRecordedResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "PaymentService", "PayBill",
		telemetry.WithAttribute(telemetry.SpanAttrBillID, cmd.BillID.String()))
	defer span.End()

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cmd.BillID == uuid.Nil {
		return nil, shared.NewValidationError("BILL_REQUIRED", "bill id is required")
	}
	if _, err := document.NewPayment(cc.TenantID, cmd.BillID, cmd.Amount, cmd.PaymentDate, cmd.CashAccountID, cc.ActorID); err != nil {
		return nil, err
	}

	lockKey := command.DocumentLockKey(cc.TenantID, "bill", cmd.BillID)
	result, err := s.run(ctx, cc, CommandPayBill, []string{lockKey}, func(ctx context.Context, tx command.Tx) (any, error) {
		return s.payBill(ctx, tx, cc, cmd)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp PaymentRecordedResponse
	if err := result.Decode(&resp); err != nil {
		return nil, err
	}
	resp.EventIDs = result.EventIDs
	resp.Replayed = result.Replayed
	if !result.Replayed {
		s.Metrics.RecordPosting(ctx, cc.TenantID, "payment")
	}
	telemetry.SetOK(span)
	return &resp, nil
}

func (s *PaymentService) payBill(ctx context.Context, tx command.Tx, cc shared.CommandContext, cmd PayBillCommand) (*PaymentRecordedResponse, error) {
	bill, err := tx.Bills().FindByIDForUpdate(ctx, cc.TenantID, cmd.BillID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("BILL_NOT_FOUND", "bill "+cmd.BillID.String()+" not found")
		}
		return nil, err
	}

	payment, err := document.NewPayment(cc.TenantID, bill.ID, cmd.Amount, cmd.PaymentDate, cmd.CashAccountID, cc.ActorID)
	if err != nil {
		return nil, err
	}
	if err := bill.RecordPayment(payment, cc.Correlation()); err != nil {
		return nil, err
	}

	entry, err := s.Posting.Post(ctx, tx, appledger.PostRequest{
		TenantID:    cc.TenantID,
		Date:        payment.PaymentDate,
		Description: "Payment of vendor bill " + bill.VendorRef,
		Lines: []appledger.PostLine{
			appledger.DebitLine(bill.PayableAccountID, ledger.AccountTypeLiability, payment.Amount, "Accounts payable "+bill.VendorRef),
			appledger.CreditLine(payment.CashAccountID, ledger.AccountTypeAsset, payment.Amount, "Cash"),
		},
		SourceType:    "payment",
		SourceID:      &payment.ID,
		CreatedBy:     cc.ActorID,
		CorrelationID: cc.Correlation(),
		CausationID:   &bill.ID,
	})
	if err != nil {
		return nil, err
	}
	payment.JournalEntryID = &entry.ID

	if err := tx.Payments().Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if err := tx.Bills().UpdatePaymentState(ctx, bill); err != nil {
		return nil, err
	}
	if err := tx.RecordEvents(ctx, bill.GetDomainEvents()...); err != nil {
		return nil, err
	}
	bill.ClearDomainEvents()

	if err := tx.Audit().Append(ctx, audit.NewLog(audit.Entry{
		TenantID:       cc.TenantID,
		ActorID:        cc.ActorID,
		Action:         audit.ActionBillPaid,
		EntityType:     "bill",
		EntityID:       bill.ID,
		IdempotencyKey: cc.ClientKey,
		CorrelationID:  cc.Correlation(),
		Metadata: map[string]any{
			"payment_id":         payment.ID,
			"amount":             payment.Amount.StringFixed(2),
			"outstanding_amount": bill.OutstandingAmount.StringFixed(2),
			"journal_entry_id":   entry.ID,
		},
	})); err != nil {
		return nil, err
	}

	s.Logger.Info("Bill payment recorded",
		zap.String("bill_id", bill.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("status", string(bill.Status)))

	return &PaymentRecordedResponse{
		PaymentID:         payment.ID,
		BillID:            bill.ID,
		JournalEntryID:    entry.ID,
		Amount:            payment.Amount.StringFixed(2),
		OutstandingAmount: bill.OutstandingAmount.StringFixed(2),
		Status:            bill.Status,
	}, nil
}
