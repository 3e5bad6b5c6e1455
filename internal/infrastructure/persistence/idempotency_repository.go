package persistence

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormIdempotencyRepository implements shared.IdempotencyRepository using GORM
type GormIdempotencyRepository struct {
	db *gorm.DB
}

// NewGormIdempotencyRepository creates a new GormIdempotencyRepository
func NewGormIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

// Create inserts a record; the unique (tenant_id, client_key) index turns a
// concurrent claim into ErrDuplicateKey
func (r *GormIdempotencyRepository) Create(ctx context.Context, rec *shared.IdempotencyRecord) error {
	return translate(r.db.WithContext(ctx).Create(rec).Error)
}

// FindByKey loads a record without locking
func (r *GormIdempotencyRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, clientKey string) (*shared.IdempotencyRecord, error) {
	return r.find(r.db.WithContext(ctx), tenantID, clientKey)
}

// FindByKeyForUpdate loads and row-locks a record
func (r *GormIdempotencyRepository) FindByKeyForUpdate(ctx context.Context, tenantID uuid.UUID, clientKey string) (*shared.IdempotencyRecord, error) {
	return r.find(forUpdate(r.db.WithContext(ctx)), tenantID, clientKey)
}

func (r *GormIdempotencyRepository) find(db *gorm.DB, tenantID uuid.UUID, clientKey string) (*shared.IdempotencyRecord, error) {
	var rec shared.IdempotencyRecord
	if err := db.Where("tenant_id = ? AND client_key = ?", tenantID, clientKey).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// Update saves a record
func (r *GormIdempotencyRepository) Update(ctx context.Context, rec *shared.IdempotencyRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return translate(r.db.WithContext(ctx).Save(rec).Error)
}

var _ shared.IdempotencyRepository = (*GormIdempotencyRepository)(nil)
