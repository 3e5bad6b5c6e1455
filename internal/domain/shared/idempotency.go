package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// IdempotencyStatus is the lifecycle state of an idempotency record
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyCompleted  IdempotencyStatus = "COMPLETED"
	IdempotencyFailed     IdempotencyStatus = "FAILED"
)

// IdempotencyRecord deduplicates command execution per tenant and client key
type IdempotencyRecord struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uq_idempotency_key,priority:1"`
	ClientKey   string            `gorm:"type:varchar(255);not null;uniqueIndex:uq_idempotency_key,priority:2"`
	Command     string            `gorm:"type:varchar(100);not null"`
	Status      IdempotencyStatus `gorm:"type:varchar(20);not null"`
	Response    datatypes.JSON
	LastError   string `gorm:"type:text"`
	Attempts    int    `gorm:"not null;default:1"`
	StartedAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

// NewIdempotencyRecord creates an IN_PROGRESS record
func NewIdempotencyRecord(tenantID uuid.UUID, clientKey, command string, now time.Time) *IdempotencyRecord {
	return &IdempotencyRecord{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientKey: clientKey,
		Command:   command,
		Status:    IdempotencyInProgress,
		Attempts:  1,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Complete stores the response and finishes the record
func (r *IdempotencyRecord) Complete(response []byte, now time.Time) {
	r.Status = IdempotencyCompleted
	r.Response = datatypes.JSON(response)
	r.LastError = ""
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Fail marks the record as failed so that a later retry may run again
func (r *IdempotencyRecord) Fail(msg string, now time.Time) {
	r.Status = IdempotencyFailed
	r.LastError = msg
	r.UpdatedAt = now
}

// IsStale reports whether an IN_PROGRESS record outlived the timeout
func (r *IdempotencyRecord) IsStale(now time.Time, timeout time.Duration) bool {
	return r.Status == IdempotencyInProgress && now.Sub(r.StartedAt) > timeout
}

// Claimable reports whether a new attempt may take the record over
func (r *IdempotencyRecord) Claimable(now time.Time, timeout time.Duration) bool {
	return r.Status == IdempotencyFailed || r.IsStale(now, timeout)
}

// Reclaim restarts the record for a new attempt
func (r *IdempotencyRecord) Reclaim(now time.Time) {
	r.Status = IdempotencyInProgress
	r.Attempts++
	r.StartedAt = now
	r.UpdatedAt = now
}

// IdempotencyRepository persists idempotency records
type IdempotencyRepository interface {
	// Create inserts a record; a key collision returns ErrDuplicateKey
	Create(ctx context.Context, rec *IdempotencyRecord) error
	// FindByKey loads a record without locking
	FindByKey(ctx context.Context, tenantID uuid.UUID, clientKey string) (*IdempotencyRecord, error)
	// FindByKeyForUpdate loads and row-locks a record
	FindByKeyForUpdate(ctx context.Context, tenantID uuid.UUID, clientKey string) (*IdempotencyRecord, error)
	// Update saves a record
	Update(ctx context.Context, rec *IdempotencyRecord) error
}

// ProcessedEventStore remembers event ids a consumer already handled
type ProcessedEventStore interface {
	// MarkProcessed marks an event as processed with a TTL.
	// Returns true if the event was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Forget drops a mark, used when handling failed after marking
	Forget(ctx context.Context, eventID string) error
	// Close closes the store and releases resources
	Close() error
}
