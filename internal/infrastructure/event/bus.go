package event

import (
	"context"
	"sync"

	"github.com/erp/ledgercore/internal/domain/shared"
	"go.uber.org/zap"
)

// FailureHook lets tests make a publish fail before any handler runs
type FailureHook func(msg shared.BusMessage) error

// InMemoryBus delivers messages synchronously to local handlers.
// It serves single-process deployments and tests.
type InMemoryBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger

	mu        sync.Mutex
	hook      FailureHook
	delivered map[string]int
}

// NewInMemoryBus creates a new in-memory bus
func NewInMemoryBus(logger *zap.Logger) *InMemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryBus{
		registry:  NewHandlerRegistry(logger),
		logger:    logger,
		delivered: make(map[string]int),
	}
}

// Subscribe registers a handler for the event types it declares
func (b *InMemoryBus) Subscribe(handler shared.EventHandler) {
	b.registry.Register(handler)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", handler.EventTypes()))
}

// SetFailureHook installs or clears (nil) the failure hook
func (b *InMemoryBus) SetFailureHook(hook FailureHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = hook
}

// Publish decodes the envelope and runs the subscribed handlers.
// A handler error is returned so the outbox retries the row.
func (b *InMemoryBus) Publish(ctx context.Context, msg shared.BusMessage) error {
	b.mu.Lock()
	hook := b.hook
	b.mu.Unlock()
	if hook != nil {
		if err := hook(msg); err != nil {
			return err
		}
	}

	env, err := DecodeEnvelope(msg.Payload)
	if err != nil {
		return err
	}
	if err := b.registry.Route(ctx, env); err != nil {
		return err
	}

	b.mu.Lock()
	b.delivered[msg.EventID.String()]++
	b.mu.Unlock()
	return nil
}

// Deliveries returns how many times an event was delivered successfully
func (b *InMemoryBus) Deliveries(eventID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered[eventID]
}

var _ shared.MessageBus = (*InMemoryBus)(nil)
