package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity provides common fields for all entities
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// GetID returns the entity ID
func (e *BaseEntity) GetID() uuid.UUID {
	return e.ID
}

// NewBaseEntity creates a new base entity with generated ID
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TenantAggregateRoot is the base of tenant-scoped aggregates with a version
// and a buffer of pending domain events
type TenantAggregateRoot struct {
	BaseEntity
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy    *uuid.UUID `gorm:"type:uuid"`
	Version      int        `gorm:"not null;default:1"`
	domainEvents []DomainEvent
}

// NewTenantAggregateRoot creates a new tenant-scoped aggregate root
func NewTenantAggregateRoot(tenantID, createdBy uuid.UUID) TenantAggregateRoot {
	root := TenantAggregateRoot{
		BaseEntity: NewBaseEntity(),
		TenantID:   tenantID,
		Version:    1,
	}
	if createdBy != uuid.Nil {
		root.CreatedBy = &createdBy
	}
	return root
}

// IncrementVersion bumps the version and touches UpdatedAt
func (a *TenantAggregateRoot) IncrementVersion() {
	a.Version++
	a.UpdatedAt = time.Now().UTC()
}

// AddDomainEvent adds a domain event to be published
func (a *TenantAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *TenantAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *TenantAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}
