package persistence

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSummaryRepository implements projection.SummaryRepository using GORM
type GormSummaryRepository struct {
	db *gorm.DB
}

// NewGormSummaryRepository creates a new GormSummaryRepository
func NewGormSummaryRepository(db *gorm.DB) *GormSummaryRepository {
	return &GormSummaryRepository{db: db}
}

// Apply upserts the summary row, adding the delta to existing totals
func (r *GormSummaryRepository) Apply(ctx context.Context, tenantID uuid.UUID, date time.Time, delta projection.Delta) error {
	y, m, d := date.UTC().Date()
	row := &projection.DailySummary{
		TenantID:     tenantID,
		Date:         time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		TotalIncome:  delta.Income,
		TotalExpense: delta.Expense,
		EntryCount:   1,
		UpdatedAt:    time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_income":  gorm.Expr("daily_summaries.total_income + excluded.total_income"),
				"total_expense": gorm.Expr("daily_summaries.total_expense + excluded.total_expense"),
				"entry_count":   gorm.Expr("daily_summaries.entry_count + 1"),
				"updated_at":    gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(row).Error
}

// Find loads the summary of (tenant, date)
func (r *GormSummaryRepository) Find(ctx context.Context, tenantID uuid.UUID, date time.Time) (*projection.DailySummary, error) {
	y, m, d := date.UTC().Date()
	var summary projection.DailySummary
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND date = ?", tenantID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC)).
		First(&summary).Error; err != nil {
		return nil, translate(err)
	}
	return &summary, nil
}

// GormProcessedEventRepository implements projection.ProcessedEventRepository using GORM
type GormProcessedEventRepository struct {
	db *gorm.DB
}

// NewGormProcessedEventRepository creates a new GormProcessedEventRepository
func NewGormProcessedEventRepository(db *gorm.DB) *GormProcessedEventRepository {
	return &GormProcessedEventRepository{db: db}
}

// MarkProcessed inserts the marker and reports whether it was new
func (r *GormProcessedEventRepository) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, eventType string) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&projection.ProcessedEvent{
			EventID:     eventID,
			Consumer:    consumer,
			EventType:   eventType,
			ProcessedAt: time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

var (
	_ projection.SummaryRepository        = (*GormSummaryRepository)(nil)
	_ projection.ProcessedEventRepository = (*GormProcessedEventRepository)(nil)
)
