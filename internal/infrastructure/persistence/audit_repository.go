package persistence

import (
	"context"

	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditRepository implements audit.Repository using GORM
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts audit records
func (r *GormAuditRepository) Append(ctx context.Context, logs ...*audit.Log) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(logs).Error
}

// ListByEntity returns the audit trail of one entity, oldest first
func (r *GormAuditRepository) ListByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*audit.Log, error) {
	var logs []*audit.Log
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

var _ audit.Repository = (*GormAuditRepository)(nil)
