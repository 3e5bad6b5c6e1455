package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is the wire schema version stamped on every envelope
const CurrentSchemaVersion = "v1"

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
	CorrelationID() string
	CausationID() string
	PartitionKey() string
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggID         uuid.UUID `json:"aggregate_id"`
	AggType       string    `json:"aggregate_type"`
	TenantIDValue uuid.UUID `json:"tenant_id"`
	Correlation   string    `json:"correlation_id,omitempty"`
	Causation     string    `json:"causation_id,omitempty"`
	Partition     string    `json:"partition_key,omitempty"`
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

// AggregateType returns the type of the aggregate
func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// TenantID returns the tenant ID
func (e *BaseDomainEvent) TenantID() uuid.UUID {
	return e.TenantIDValue
}

// CorrelationID returns the workflow correlation id
func (e *BaseDomainEvent) CorrelationID() string {
	return e.Correlation
}

// CausationID returns the id of whatever caused this event, if known
func (e *BaseDomainEvent) CausationID() string {
	return e.Causation
}

// PartitionKey returns the ordering key used by the bus.
// Events of one tenant share a key unless the event overrides it.
func (e *BaseDomainEvent) PartitionKey() string {
	if e.Partition != "" {
		return e.Partition
	}
	return e.TenantIDValue.String()
}

// Correlate sets correlation and causation ids
func (e *BaseDomainEvent) Correlate(correlationID, causationID string) {
	e.Correlation = correlationID
	e.Causation = causationID
}

// NewBaseDomainEvent creates a new base domain event
func NewBaseDomainEvent(eventType, aggType string, aggID, tenantID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		AggID:         aggID,
		AggType:       aggType,
		TenantIDValue: tenantID,
	}
}

// EventRecorder persists domain events alongside the mutation that produced them
type EventRecorder interface {
	RecordEvents(ctx context.Context, events ...DomainEvent) error
}
