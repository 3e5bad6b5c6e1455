package document

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeBill is the aggregate type of bill events
const AggregateTypeBill = "Bill"

// Event type constants
const (
	EventTypeBillPosted          = "bill.posted"
	EventTypeBillPaymentRecorded = "bill.payment.recorded"
)

// BillPostedEvent is raised when a bill and its journal entry are committed
type BillPostedEvent struct {
	shared.BaseDomainEvent
	BillID         uuid.UUID       `json:"billId"`
	VendorRef      string          `json:"vendorRef"`
	BillDate       string          `json:"billDate"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	JournalEntryID uuid.UUID       `json:"journalEntryId"`
	StockMoveIDs   []uuid.UUID     `json:"stockMoveIds,omitempty"`
}

// NewBillPostedEvent creates a new BillPostedEvent
func NewBillPostedEvent(b *Bill, correlationID string) *BillPostedEvent {
	var moves []uuid.UUID
	for _, l := range b.Lines {
		if l.StockMoveID != nil {
			moves = append(moves, *l.StockMoveID)
		}
	}
	ev := &BillPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillPosted, AggregateTypeBill, b.ID, b.TenantID),
		BillID:          b.ID,
		VendorRef:       b.VendorRef,
		BillDate:        b.BillDate.Format(time.DateOnly),
		TotalAmount:     b.TotalAmount,
		JournalEntryID:  *b.JournalEntryID,
		StockMoveIDs:    moves,
	}
	ev.Correlate(correlationID, "")
	return ev
}

// BillPaymentRecordedEvent is raised when a payment is applied to a bill
type BillPaymentRecordedEvent struct {
	shared.BaseDomainEvent
	BillID            uuid.UUID       `json:"billId"`
	PaymentID         uuid.UUID       `json:"paymentId"`
	Amount            decimal.Decimal `json:"amount"`
	OutstandingAmount decimal.Decimal `json:"outstandingAmount"`
	Status            BillStatus      `json:"status"`
}

// NewBillPaymentRecordedEvent creates a new BillPaymentRecordedEvent
func NewBillPaymentRecordedEvent(b *Bill, p *Payment, correlationID string) *BillPaymentRecordedEvent {
	ev := &BillPaymentRecordedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeBillPaymentRecorded, AggregateTypeBill, b.ID, b.TenantID),
		BillID:            b.ID,
		PaymentID:         p.ID,
		Amount:            p.Amount,
		OutstandingAmount: b.OutstandingAmount,
		Status:            b.Status,
	}
	ev.Correlate(correlationID, p.ID.String())
	return ev
}
