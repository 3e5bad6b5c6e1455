package models

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// TenantAggregateModel provides common persistence fields for tenant-scoped
// aggregate roots, with the version used for optimistic locking.
type TenantAggregateModel struct {
	BaseModel
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid"`
	Version   int        `gorm:"not null;default:1"`
}

// ToDomain rebuilds the aggregate root; pending domain events start empty
func (m *TenantAggregateModel) ToDomain() shared.TenantAggregateRoot {
	return shared.TenantAggregateRoot{
		BaseEntity: m.BaseModel.ToDomain(),
		TenantID:   m.TenantID,
		CreatedBy:  m.CreatedBy,
		Version:    m.Version,
	}
}

// FromDomainTenantAggregateRoot populates TenantAggregateModel from domain TenantAggregateRoot
func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(t shared.TenantAggregateRoot) {
	m.ID = t.ID
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	m.TenantID = t.TenantID
	m.CreatedBy = t.CreatedBy
	m.Version = t.Version
}
