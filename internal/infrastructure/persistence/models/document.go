package models

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillModel is the persistence model for the Bill aggregate root.
type BillModel struct {
	TenantAggregateModel
	VendorRef         string              `gorm:"type:varchar(100);not null;index"`
	BillDate          time.Time           `gorm:"type:date;not null;index"`
	PayableAccountID  uuid.UUID           `gorm:"type:uuid;not null"`
	TotalAmount       decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	PaidAmount        decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	OutstandingAmount decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	Status            document.BillStatus `gorm:"type:varchar(20);not null"`
	JournalEntryID    *uuid.UUID          `gorm:"type:uuid"`
	PaidAt            *time.Time
	Lines             []BillLineModel `gorm:"foreignKey:BillID;references:ID"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain Bill
func (m *BillModel) ToDomain() *document.Bill {
	bill := &document.Bill{
		TenantAggregateRoot: m.TenantAggregateModel.ToDomain(),
		VendorRef:           m.VendorRef,
		BillDate:            m.BillDate,
		PayableAccountID:    m.PayableAccountID,
		TotalAmount:         m.TotalAmount,
		PaidAmount:          m.PaidAmount,
		OutstandingAmount:   m.OutstandingAmount,
		Status:              m.Status,
		JournalEntryID:      m.JournalEntryID,
		PaidAt:              m.PaidAt,
		Lines:               make([]document.BillLine, len(m.Lines)),
	}
	for i := range m.Lines {
		bill.Lines[i] = m.Lines[i].ToDomain()
	}
	return bill
}

// FromDomain populates the persistence model from a domain Bill
func (m *BillModel) FromDomain(b *document.Bill) {
	m.FromDomainTenantAggregateRoot(b.TenantAggregateRoot)
	m.VendorRef = b.VendorRef
	m.BillDate = b.BillDate
	m.PayableAccountID = b.PayableAccountID
	m.TotalAmount = b.TotalAmount
	m.PaidAmount = b.PaidAmount
	m.OutstandingAmount = b.OutstandingAmount
	m.Status = b.Status
	m.JournalEntryID = b.JournalEntryID
	m.PaidAt = b.PaidAt
	m.Lines = make([]BillLineModel, len(b.Lines))
	for i := range b.Lines {
		m.Lines[i].FromDomain(&b.Lines[i])
	}
}

// BillLineModel is the persistence model for a bill line
type BillLineModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	BillID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	LineNo      int               `gorm:"not null"`
	Kind        document.LineKind `gorm:"type:varchar(20);not null"`
	ItemID      *uuid.UUID        `gorm:"type:uuid"`
	LocationID  *uuid.UUID        `gorm:"type:uuid"`
	Quantity    decimal.Decimal   `gorm:"type:decimal(18,4);not null"`
	UnitCost    decimal.Decimal   `gorm:"type:decimal(18,6);not null"`
	Amount      decimal.Decimal   `gorm:"type:decimal(18,2);not null"`
	AccountID   uuid.UUID         `gorm:"type:uuid;not null"`
	Description string            `gorm:"type:varchar(255)"`
	StockMoveID *uuid.UUID        `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (BillLineModel) TableName() string {
	return "bill_lines"
}

// ToDomain converts the persistence model to a domain BillLine
func (m *BillLineModel) ToDomain() document.BillLine {
	return document.BillLine{
		ID:          m.ID,
		BillID:      m.BillID,
		LineNo:      m.LineNo,
		Kind:        m.Kind,
		ItemID:      m.ItemID,
		LocationID:  m.LocationID,
		Quantity:    m.Quantity,
		UnitCost:    m.UnitCost,
		Amount:      m.Amount,
		AccountID:   m.AccountID,
		Description: m.Description,
		StockMoveID: m.StockMoveID,
	}
}

// FromDomain populates the persistence model from a domain BillLine
func (m *BillLineModel) FromDomain(l *document.BillLine) {
	m.ID = l.ID
	m.BillID = l.BillID
	m.LineNo = l.LineNo
	m.Kind = l.Kind
	m.ItemID = l.ItemID
	m.LocationID = l.LocationID
	m.Quantity = l.Quantity
	m.UnitCost = l.UnitCost
	m.Amount = l.Amount
	m.AccountID = l.AccountID
	m.Description = l.Description
	m.StockMoveID = l.StockMoveID
}

// PaymentModel is the persistence model for a bill payment
type PaymentModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_payment_bill,priority:1"`
	BillID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_payment_bill,priority:2"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentDate    time.Time       `gorm:"type:date;not null"`
	CashAccountID  uuid.UUID       `gorm:"type:uuid;not null"`
	JournalEntryID *uuid.UUID      `gorm:"type:uuid"`
	CreatedBy      uuid.UUID       `gorm:"type:uuid"`
	CreatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "bill_payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *document.Payment {
	return &document.Payment{
		ID:             m.ID,
		TenantID:       m.TenantID,
		BillID:         m.BillID,
		Amount:         m.Amount,
		PaymentDate:    m.PaymentDate,
		CashAccountID:  m.CashAccountID,
		JournalEntryID: m.JournalEntryID,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *document.Payment) *PaymentModel {
	return &PaymentModel{
		ID:             p.ID,
		TenantID:       p.TenantID,
		BillID:         p.BillID,
		Amount:         p.Amount,
		PaymentDate:    p.PaymentDate,
		CashAccountID:  p.CashAccountID,
		JournalEntryID: p.JournalEntryID,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
	}
}
