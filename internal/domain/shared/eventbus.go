package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format of every published event
type Envelope struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	SchemaVersion string          `json:"schemaVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	TenantID      uuid.UUID       `json:"tenantId"`
	CompanyID     uuid.UUID       `json:"companyId"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId,omitempty"`
	CausationID   string          `json:"causationId,omitempty"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
}

// DecodePayload unmarshals the event payload into v
func (e *Envelope) DecodePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// BusMessage is what the outbox hands to a message bus
type BusMessage struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Attributes   map[string]string
	Payload      []byte
}

// MessageBus delivers messages to external consumers.
// Delivery is at-least-once; consumers dedupe on the event id.
type MessageBus interface {
	Publish(ctx context.Context, msg BusMessage) error
}

// EventHandler handles delivered event envelopes
type EventHandler interface {
	// Handle processes an event envelope
	Handle(ctx context.Context, env *Envelope) error
	// EventTypes returns the event types this handler is interested in.
	// An empty slice means the handler receives all events
	EventTypes() []string
}

// EventSerializer turns domain events into envelope bytes
type EventSerializer interface {
	Serialize(event DomainEvent) ([]byte, error)
}
