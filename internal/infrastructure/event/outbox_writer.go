package event

import (
	"context"
	"fmt"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxWriter stores domain events as outbox rows inside the caller's transaction
type OutboxWriter struct {
	serializer  shared.EventSerializer
	maxAttempts int
}

// NewOutboxWriter creates a new outbox writer
func NewOutboxWriter(serializer shared.EventSerializer, maxAttempts int) *OutboxWriter {
	return &OutboxWriter{
		serializer:  serializer,
		maxAttempts: maxAttempts,
	}
}

// WriteWithTx serializes events and saves them with tx, returning their ids in order
func (w *OutboxWriter) WriteWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) ([]uuid.UUID, error) {
	if len(events) == 0 {
		return nil, nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	ids := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		payload, err := w.serializer.Serialize(event)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", event.EventType(), err)
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload, w.maxAttempts))
		ids = append(ids, event.EventID())
	}

	if err := NewGormOutboxRepository(tx).Save(ctx, entries...); err != nil {
		return nil, err
	}
	return ids, nil
}
