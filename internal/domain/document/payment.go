package document

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment settles part or all of a bill
type Payment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	BillID         uuid.UUID
	Amount         decimal.Decimal
	PaymentDate    time.Time
	CashAccountID  uuid.UUID
	JournalEntryID *uuid.UUID
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
}

// NewPayment builds a payment; it is only persisted once the bill accepts it
func NewPayment(tenantID, billID uuid.UUID, amount decimal.Decimal, date time.Time, cashAccountID, actor uuid.UUID) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !shared.IsMoney(amount) {
		return nil, shared.NewValidationError("AMOUNT_PRECISION", "Payment amount has more than two decimal places")
	}
	if cashAccountID == uuid.Nil {
		return nil, shared.NewValidationError("ACCOUNT_REQUIRED", "Cash account is required")
	}
	if date.IsZero() {
		date = time.Now()
	}
	y, m, d := date.UTC().Date()
	return &Payment{
		ID:            uuid.New(),
		TenantID:      tenantID,
		BillID:        billID,
		Amount:        amount,
		PaymentDate:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		CashAccountID: cashAccountID,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
