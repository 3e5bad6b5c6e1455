package persistence

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBillRepository implements document.BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// Create inserts the bill with its lines
func (r *GormBillRepository) Create(ctx context.Context, bill *document.Bill) error {
	model := &models.BillModel{}
	model.FromDomain(bill)
	return translate(r.db.WithContext(ctx).Create(model).Error)
}

// FindByID loads a bill with its lines
func (r *GormBillRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*document.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderByLineNo).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate row-locks the bill header, then loads the lines
func (r *GormBillRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*document.Bill, error) {
	db := r.db.WithContext(ctx)
	var model models.BillModel
	if err := forUpdate(db).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, translate(err)
	}
	if err := db.Where("bill_id = ?", model.ID).Order("line_no ASC").Find(&model.Lines).Error; err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdatePaymentState saves the payment totals. The bill's version was already
// incremented by the domain, so the row must still hold the previous one.
func (r *GormBillRepository) UpdatePaymentState(ctx context.Context, bill *document.Bill) error {
	result := r.db.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", bill.TenantID, bill.ID, bill.Version-1).
		Updates(map[string]any{
			"paid_amount":        bill.PaidAmount,
			"outstanding_amount": bill.OutstandingAmount,
			"status":             bill.Status,
			"paid_at":            bill.PaidAt,
			"version":            bill.Version,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// GormPaymentRepository implements document.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts a payment
func (r *GormPaymentRepository) Create(ctx context.Context, payment *document.Payment) error {
	return translate(r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error)
}

// ListByBill returns the payments of a bill, oldest first
func (r *GormPaymentRepository) ListByBill(ctx context.Context, tenantID, billID uuid.UUID) ([]*document.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND bill_id = ?", tenantID, billID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]*document.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

var (
	_ document.BillRepository    = (*GormBillRepository)(nil)
	_ document.PaymentRepository = (*GormPaymentRepository)(nil)
)
