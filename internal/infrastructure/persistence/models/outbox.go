package models

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

// OutboxEntryModel is the persistence model for events stored in the outbox.
// Rows are written in the business transaction and drained by the relay.
type OutboxEntryModel struct {
	ID                   uuid.UUID           `gorm:"type:uuid;primaryKey"`
	EventID              uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex"`
	TenantID             uuid.UUID           `gorm:"type:uuid;not null;index"`
	EventType            string              `gorm:"type:varchar(100);not null"`
	SchemaVersion        string              `gorm:"type:varchar(10);not null"`
	OccurredAt           time.Time           `gorm:"not null"`
	AggregateType        string              `gorm:"type:varchar(50);not null"`
	AggregateID          uuid.UUID           `gorm:"type:uuid;not null"`
	CorrelationID        string              `gorm:"type:varchar(100)"`
	CausationID          string              `gorm:"type:varchar(100)"`
	PartitionKey         string              `gorm:"type:varchar(200);not null"`
	Payload              []byte              `gorm:"type:jsonb;not null"`
	Status               shared.OutboxStatus `gorm:"type:varchar(20);not null;index:idx_outbox_due,priority:1"`
	Attempts             int                 `gorm:"not null;default:0"`
	MaxAttempts          int                 `gorm:"not null"`
	PublishedAt          *time.Time          `gorm:"index"`
	NextPublishAttemptAt time.Time           `gorm:"not null;index:idx_outbox_due,priority:2"`
	LastPublishError     string              `gorm:"type:text"`
	CreatedAt            time.Time           `gorm:"not null"`
	UpdatedAt            time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEntryModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the persistence model to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:                   m.ID,
		EventID:              m.EventID,
		TenantID:             m.TenantID,
		EventType:            m.EventType,
		SchemaVersion:        m.SchemaVersion,
		OccurredAt:           m.OccurredAt,
		AggregateType:        m.AggregateType,
		AggregateID:          m.AggregateID,
		CorrelationID:        m.CorrelationID,
		CausationID:          m.CausationID,
		PartitionKey:         m.PartitionKey,
		Payload:              m.Payload,
		Status:               m.Status,
		Attempts:             m.Attempts,
		MaxAttempts:          m.MaxAttempts,
		PublishedAt:          m.PublishedAt,
		NextPublishAttemptAt: m.NextPublishAttemptAt,
		LastPublishError:     m.LastPublishError,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain OutboxEntry
func (m *OutboxEntryModel) FromDomain(e *shared.OutboxEntry) {
	m.ID = e.ID
	m.EventID = e.EventID
	m.TenantID = e.TenantID
	m.EventType = e.EventType
	m.SchemaVersion = e.SchemaVersion
	m.OccurredAt = e.OccurredAt
	m.AggregateType = e.AggregateType
	m.AggregateID = e.AggregateID
	m.CorrelationID = e.CorrelationID
	m.CausationID = e.CausationID
	m.PartitionKey = e.PartitionKey
	m.Payload = e.Payload
	m.Status = e.Status
	m.Attempts = e.Attempts
	m.MaxAttempts = e.MaxAttempts
	m.PublishedAt = e.PublishedAt
	m.NextPublishAttemptAt = e.NextPublishAttemptAt
	m.LastPublishError = e.LastPublishError
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// OutboxEntryModelFromDomain creates a new persistence model from a domain OutboxEntry
func OutboxEntryModelFromDomain(e *shared.OutboxEntry) *OutboxEntryModel {
	m := &OutboxEntryModel{}
	m.FromDomain(e)
	return m
}

// OutboxEntriesToDomain converts a slice of models
func OutboxEntriesToDomain(ms []OutboxEntryModel) []*shared.OutboxEntry {
	out := make([]*shared.OutboxEntry, len(ms))
	for i := range ms {
		out[i] = ms[i].ToDomain()
	}
	return out
}
