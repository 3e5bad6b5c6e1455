package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository implements OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// ClaimDue locks due rows with FOR UPDATE SKIP LOCKED and leases them to the caller.
// PROCESSING rows whose lease ran out are due again.
func (r *GormOutboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*shared.OutboxEntry, error) {
	return r.claim(ctx, now, lease, func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NULL AND status IN ? AND next_publish_attempt_at <= ?",
			[]shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed, shared.OutboxStatusProcessing}, now).
			Order("next_publish_attempt_at ASC").
			Limit(limit)
	})
}

// ClaimPending leases the given events if they are still PENDING
func (r *GormOutboxRepository) ClaimPending(ctx context.Context, eventIDs []uuid.UUID, now time.Time, lease time.Duration) ([]*shared.OutboxEntry, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	return r.claim(ctx, now, lease, func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NULL AND status = ? AND event_id IN ?", shared.OutboxStatusPending, eventIDs).
			Order("created_at ASC")
	})
}

func (r *GormOutboxRepository) claim(ctx context.Context, now time.Time, lease time.Duration, scope func(*gorm.DB) *gorm.DB) ([]*shared.OutboxEntry, error) {
	var entries []*shared.OutboxEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OutboxEntryModel
		if err := scope(tx.Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "SKIP LOCKED",
		})).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		if err := tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":                  shared.OutboxStatusProcessing,
				"next_publish_attempt_at": now.Add(lease),
				"updated_at":              now,
			}).Error; err != nil {
			return err
		}

		entries = models.OutboxEntriesToDomain(rows)
		for _, e := range entries {
			e.Claim(now, lease)
		}
		return nil
	})

	return entries, err
}

// MarkPublished sets published_at only if no other worker did it first
func (r *GormOutboxRepository) MarkPublished(ctx context.Context, entry *shared.OutboxEntry) (bool, error) {
	now := time.Now().UTC()
	if !entry.MarkPublished(now) {
		return false, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ? AND published_at IS NULL", entry.ID).
		Updates(map[string]any{
			"status":             shared.OutboxStatusPublished,
			"published_at":       now,
			"attempts":           gorm.Expr("attempts + 1"),
			"last_publish_error": "",
			"updated_at":         now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Update updates an existing outbox entry. A published row is never touched.
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ? AND published_at IS NULL", entry.ID).
		Updates(map[string]any{
			"status":                  entry.Status,
			"attempts":                entry.Attempts,
			"next_publish_attempt_at": entry.NextPublishAttemptAt,
			"last_publish_error":      entry.LastPublishError,
			"updated_at":              entry.UpdatedAt,
		})
	return result.Error
}

// DeleteOlderThan deletes published entries older than the specified time
func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND published_at < ?", shared.OutboxStatusPublished, before).
		Delete(&models.OutboxEntryModel{})
	return result.RowsAffected, result.Error
}

// FindDead retrieves dead letter entries with pagination
func (r *GormOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	var rows []models.OutboxEntryModel
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("status = ?", shared.OutboxStatusDead).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusDead).
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	return models.OutboxEntriesToDomain(rows), total, nil
}

// FindByID retrieves a single outbox entry by ID
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain(), nil
}

// FindByEventIDs retrieves entries by event id
func (r *GormOutboxRepository) FindByEventIDs(ctx context.Context, eventIDs []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var rows []models.OutboxEntryModel
	if err := r.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return models.OutboxEntriesToDomain(rows), nil
}

// CountByStatus returns count of entries for each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type statusCount struct {
		Status shared.OutboxStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64)
	for _, r := range results {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Ensure GormOutboxRepository implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
