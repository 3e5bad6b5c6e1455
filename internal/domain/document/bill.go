package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus represents the payment status of a posted bill
type BillStatus string

const (
	BillStatusPosted        BillStatus = "POSTED"         // Posted, nothing paid
	BillStatusPartiallyPaid BillStatus = "PARTIALLY_PAID" // 0 < outstanding < total
	BillStatusPaid          BillStatus = "PAID"           // Outstanding = 0
)

// CanApplyPayment returns true if payments can be applied in this status
func (s BillStatus) CanApplyPayment() bool {
	return s == BillStatusPosted || s == BillStatusPartiallyPaid
}

// LineKind distinguishes tracked inventory from expensed services
type LineKind string

const (
	LineKindInventory LineKind = "INVENTORY"
	LineKindService   LineKind = "SERVICE"
)

// IsValid returns true if the line kind is known
func (k LineKind) IsValid() bool {
	return k == LineKindInventory || k == LineKindService
}

// BillLine is one line of a vendor bill
type BillLine struct {
	ID         uuid.UUID
	BillID     uuid.UUID
	LineNo     int
	Kind       LineKind
	ItemID     *uuid.UUID
	LocationID *uuid.UUID
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Amount     decimal.Decimal
	// AccountID is debited: the inventory account for INVENTORY lines, an expense account otherwise
	AccountID   uuid.UUID
	Description string
	StockMoveID *uuid.UUID
}

// BillLineInput describes a bill line before posting
type BillLineInput struct {
	Kind        LineKind
	ItemID      uuid.UUID
	LocationID  uuid.UUID
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Amount      decimal.Decimal
	AccountID   uuid.UUID
	Description string
}

// Bill is a posted vendor bill. It owns the accounts payable balance toward the vendor.
type Bill struct {
	shared.TenantAggregateRoot
	VendorRef         string
	BillDate          time.Time
	PayableAccountID  uuid.UUID
	TotalAmount       decimal.Decimal
	PaidAmount        decimal.Decimal
	OutstandingAmount decimal.Decimal
	Status            BillStatus
	JournalEntryID    *uuid.UUID
	PaidAt            *time.Time
	Lines             []BillLine
}

// NewBill validates the lines and builds a bill in POSTED status
func NewBill(tenantID, actorID uuid.UUID, vendorRef string, billDate time.Time, payableAccountID uuid.UUID, inputs []BillLineInput) (*Bill, error) {
	vendorRef = strings.TrimSpace(vendorRef)
	if vendorRef == "" {
		return nil, shared.NewValidationError("INVALID_VENDOR_REF", "Vendor reference cannot be empty")
	}
	if billDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_BILL_DATE", "Bill date is required")
	}
	if payableAccountID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_PAYABLE_ACCOUNT", "Payable account is required")
	}
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("NO_LINES", "Bill must have at least one line")
	}

	y, m, d := billDate.UTC().Date()
	bill := &Bill{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, actorID),
		VendorRef:           vendorRef,
		BillDate:            time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		PayableAccountID:    payableAccountID,
		PaidAmount:          decimal.Zero,
		Status:              BillStatusPosted,
	}

	total := decimal.Zero
	for i, in := range inputs {
		line, err := newBillLine(bill.ID, i+1, in)
		if err != nil {
			return nil, err
		}
		total = total.Add(line.Amount)
		bill.Lines = append(bill.Lines, *line)
	}
	if !total.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Bill total must be positive")
	}
	bill.TotalAmount = total
	bill.OutstandingAmount = total
	return bill, nil
}

func newBillLine(billID uuid.UUID, no int, in BillLineInput) (*BillLine, error) {
	if !in.Kind.IsValid() {
		return nil, shared.NewValidationError("INVALID_LINE_KIND", fmt.Sprintf("line %d: unknown kind %q", no, in.Kind))
	}
	if in.AccountID == uuid.Nil {
		return nil, shared.NewValidationError("ACCOUNT_REQUIRED", fmt.Sprintf("line %d: account is required", no))
	}
	line := &BillLine{
		ID:          uuid.New(),
		BillID:      billID,
		LineNo:      no,
		Kind:        in.Kind,
		AccountID:   in.AccountID,
		Description: in.Description,
	}

	switch in.Kind {
	case LineKindInventory:
		if in.ItemID == uuid.Nil || in.LocationID == uuid.Nil {
			return nil, shared.NewValidationError("STOCK_KEY_REQUIRED", fmt.Sprintf("line %d: item and location are required", no))
		}
		if !in.Quantity.IsPositive() {
			return nil, shared.NewValidationError("INVALID_QUANTITY", fmt.Sprintf("line %d: quantity must be positive", no))
		}
		if !shared.IsQuantity(in.Quantity) {
			return nil, shared.NewValidationError("QUANTITY_PRECISION", fmt.Sprintf("line %d: quantity has more than four decimal places", no))
		}
		if in.UnitCost.IsNegative() {
			return nil, shared.NewValidationError("INVALID_UNIT_COST", fmt.Sprintf("line %d: unit cost cannot be negative", no))
		}
		item, loc := in.ItemID, in.LocationID
		line.ItemID = &item
		line.LocationID = &loc
		line.Quantity = in.Quantity
		line.UnitCost = shared.RoundCost(in.UnitCost)
		line.Amount = shared.RoundMoney(in.Quantity.Mul(line.UnitCost))
	case LineKindService:
		if !in.Amount.IsPositive() {
			return nil, shared.NewValidationError("INVALID_AMOUNT", fmt.Sprintf("line %d: amount must be positive", no))
		}
		if !shared.IsMoney(in.Amount) {
			return nil, shared.NewValidationError("AMOUNT_PRECISION", fmt.Sprintf("line %d: amount has more than two decimal places", no))
		}
		line.Quantity = decimal.Zero
		line.UnitCost = decimal.Zero
		line.Amount = in.Amount
	}
	return line, nil
}

// InventoryLines returns the tracked inventory lines
func (b *Bill) InventoryLines() []*BillLine {
	var out []*BillLine
	for i := range b.Lines {
		if b.Lines[i].Kind == LineKindInventory {
			out = append(out, &b.Lines[i])
		}
	}
	return out
}

// LinkJournal records the entry that posted the bill
func (b *Bill) LinkJournal(entryID uuid.UUID) {
	b.JournalEntryID = &entryID
}

// MarkPosted raises the posted event once the journal link is in place
func (b *Bill) MarkPosted(correlationID string) error {
	if b.JournalEntryID == nil {
		return shared.NewIntegrityError("MISSING_JOURNAL_LINK", "posted bill "+b.ID.String()+" has no journal entry")
	}
	b.AddDomainEvent(NewBillPostedEvent(b, correlationID))
	return nil
}

// RemainingBalance returns the amount still owed
func (b *Bill) RemainingBalance() decimal.Decimal {
	return b.OutstandingAmount
}

// RecordPayment applies amount against the outstanding balance
func (b *Bill) RecordPayment(payment *Payment, correlationID string) error {
	if !b.Status.CanApplyPayment() {
		return shared.NewValidationError("INVALID_STATE", fmt.Sprintf("Cannot apply payment to bill in %s status", b.Status))
	}
	amount := payment.Amount
	if !amount.IsPositive() {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if amount.GreaterThan(b.OutstandingAmount) {
		return shared.NewValidationError("AMOUNT_EXCEEDS_BALANCE",
			fmt.Sprintf("Payment amount %s exceeds remaining balance %s", amount.StringFixed(2), b.OutstandingAmount.StringFixed(2))).
			WithDetail("remaining_balance", b.OutstandingAmount.StringFixed(2))
	}

	b.PaidAmount = b.PaidAmount.Add(amount)
	b.OutstandingAmount = b.TotalAmount.Sub(b.PaidAmount)
	if b.OutstandingAmount.IsZero() {
		now := time.Now().UTC()
		b.Status = BillStatusPaid
		b.PaidAt = &now
	} else {
		b.Status = BillStatusPartiallyPaid
	}
	b.IncrementVersion()
	b.AddDomainEvent(NewBillPaymentRecordedEvent(b, payment, correlationID))
	return nil
}
