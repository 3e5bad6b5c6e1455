package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/ledgercore/internal/domain/shared"
	"go.uber.org/zap"
)

// HandlerRegistry routes envelopes to the handlers subscribed to their type
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler // eventType -> handlers
	wildcard []shared.EventHandler
	logger   *zap.Logger
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry(logger *zap.Logger) *HandlerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandlerRegistry{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger,
	}
}

// Register subscribes a handler to the types it declares.
// A handler declaring no types receives every envelope.
func (r *HandlerRegistry) Register(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := handler.EventTypes()
	if len(types) == 0 {
		r.wildcard = append(r.wildcard, handler)
		return
	}
	for _, t := range types {
		r.handlers[t] = append(r.handlers[t], handler)
	}
}

// GetHandlers returns the type-specific handlers followed by the wildcard ones
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.handlers[eventType]
	result := make([]shared.EventHandler, 0, len(typed)+len(r.wildcard))
	result = append(result, typed...)
	result = append(result, r.wildcard...)
	return result
}

// Route hands env to every subscribed handler. All handlers run even when one
// fails; the joined error tells the transport to redeliver.
func (r *HandlerRegistry) Route(ctx context.Context, env *shared.Envelope) error {
	handlers := r.GetHandlers(env.EventType)
	if len(handlers) == 0 {
		r.logger.Debug("no handler for event",
			zap.String("event_type", env.EventType),
			zap.String("event_id", env.EventID.String()),
		)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := r.dispatch(ctx, h, env); err != nil {
			r.logger.Error("handler failed to process event",
				zap.String("event_type", env.EventType),
				zap.String("event_id", env.EventID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *HandlerRegistry) dispatch(ctx context.Context, h shared.EventHandler, env *shared.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked",
				zap.String("event_type", env.EventType),
				zap.Any("panic", p),
			)
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h.Handle(ctx, env)
}
