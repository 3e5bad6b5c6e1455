package document

import (
	"context"

	"github.com/google/uuid"
)

// BillRepository persists bills and their lines
type BillRepository interface {
	// Create inserts the bill with its lines
	Create(ctx context.Context, bill *Bill) error

	// FindByID loads a bill with its lines
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Bill, error)

	// FindByIDForUpdate loads and row-locks a bill
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Bill, error)

	// UpdatePaymentState saves paid/outstanding amounts and status using the version for optimistic locking
	UpdatePaymentState(ctx context.Context, bill *Bill) error
}

// PaymentRepository persists bill payments
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	ListByBill(ctx context.Context, tenantID, billID uuid.UUID) ([]*Payment, error)
}
