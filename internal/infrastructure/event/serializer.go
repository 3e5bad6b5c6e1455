package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/erp/ledgercore/internal/domain/shared"
)

// EnvelopeSerializer wraps domain events in the wire envelope. Only registered
// event types can be serialized, so the outbox never holds a type no consumer
// can decode.
type EnvelopeSerializer struct {
	source   string
	mu       sync.RWMutex
	registry map[string]reflect.Type // eventType -> Go type
}

// NewEnvelopeSerializer creates a serializer stamping source on every envelope
func NewEnvelopeSerializer(source string) *EnvelopeSerializer {
	return &EnvelopeSerializer{
		source:   source,
		registry: make(map[string]reflect.Type),
	}
}

// Register registers an event type for serialization and decoding
func (s *EnvelopeSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize builds the envelope JSON for event
func (s *EnvelopeSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("unknown event type: %s", event.EventType())
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event.EventType(), err)
	}
	env := shared.Envelope{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		SchemaVersion: shared.CurrentSchemaVersion,
		OccurredAt:    event.OccurredAt(),
		TenantID:      event.TenantID(),
		CompanyID:     event.TenantID(),
		Source:        s.source,
		CorrelationID: event.CorrelationID(),
		CausationID:   event.CausationID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		Payload:       payload,
	}
	return json.Marshal(env)
}

// Decode parses envelope bytes
func (s *EnvelopeSerializer) Decode(data []byte) (*shared.Envelope, error) {
	return DecodeEnvelope(data)
}

// Event decodes the envelope payload into its registered Go type
func (s *EnvelopeSerializer) Event(env *shared.Envelope) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[env.EventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(env.Payload, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EnvelopeSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types
func (s *EnvelopeSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	return types
}

// DecodeEnvelope parses envelope bytes and checks the fields consumers rely on
func DecodeEnvelope(data []byte) (*shared.Envelope, error) {
	var env shared.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("envelope %s has no event type", env.EventID)
	}
	if env.SchemaVersion != shared.CurrentSchemaVersion {
		return nil, fmt.Errorf("envelope %s has unsupported schema version %q", env.EventID, env.SchemaVersion)
	}
	return &env, nil
}

var _ shared.EventSerializer = (*EnvelopeSerializer)(nil)
