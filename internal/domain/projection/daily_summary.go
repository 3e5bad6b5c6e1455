package projection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailySummary aggregates income and expense postings per tenant and day
type DailySummary struct {
	TenantID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Date         time.Time       `gorm:"type:date;primaryKey"`
	TotalIncome  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalExpense decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	EntryCount   int             `gorm:"not null;default:0"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DailySummary) TableName() string {
	return "daily_summaries"
}

// NetIncome returns income minus expense
func (s *DailySummary) NetIncome() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpense)
}

// Delta is the contribution of one journal entry to a summary
type Delta struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// IsZero reports whether the delta changes nothing but the entry count
func (d Delta) IsZero() bool {
	return d.Income.IsZero() && d.Expense.IsZero()
}

// ProcessedEvent remembers a consumed event id so redelivery is ignored
type ProcessedEvent struct {
	EventID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Consumer    string    `gorm:"type:varchar(100);primaryKey"`
	EventType   string    `gorm:"type:varchar(100);not null"`
	ProcessedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// SummaryRepository applies deltas to daily summaries
type SummaryRepository interface {
	// Apply adds delta to the summary of (tenant, date), creating it when absent
	Apply(ctx context.Context, tenantID uuid.UUID, date time.Time, delta Delta) error
	// Find loads a summary
	Find(ctx context.Context, tenantID uuid.UUID, date time.Time) (*DailySummary, error)
}

// ProcessedEventRepository records consumed events durably
type ProcessedEventRepository interface {
	// MarkProcessed inserts the marker; false means it already existed
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, eventType string) (bool, error)
}
