package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultProcessedEventTTL is how long a handled event id is remembered
const DefaultProcessedEventTTL = 7 * 24 * time.Hour

const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// ConsumerStats counts deliveries seen by an IdempotentHandler
type ConsumerStats struct {
	Processed int64 `json:"processed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// IdempotentHandler runs the wrapped handler at most once per event id as
// seen by the store. The store is a fast first filter; handlers that write
// to the database keep their own processed-event row in the same
// transaction. A store outage lets the delivery through.
type IdempotentHandler struct {
	inner   shared.EventHandler
	store   shared.ProcessedEventStore
	ttl     time.Duration
	logger  *zap.Logger
	metrics *telemetry.LedgerMetrics

	processed, duplicate, failed atomic.Int64
}

type IdempotentHandlerOption func(*IdempotentHandler)

// WithProcessedEventTTL sets how long event ids are remembered. Non-positive
// values keep the default.
func WithProcessedEventTTL(ttl time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithConsumerMetrics reports each outcome to m
func WithConsumerMetrics(m *telemetry.LedgerMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.metrics = m }
}

func NewIdempotentHandler(inner shared.EventHandler, store shared.ProcessedEventStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &IdempotentHandler{inner: inner, store: store, ttl: DefaultProcessedEventTTL, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string { return h.inner.EventTypes() }

func (h *IdempotentHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	id := env.EventID.String()
	log := h.logger.With(zap.String("event_id", id), zap.String("event_type", env.EventType))

	fresh, err := h.store.MarkProcessed(ctx, id, h.ttl)
	switch {
	case err != nil:
		log.Warn("processed-event store unavailable, handling anyway", zap.Error(err))
	case !fresh:
		h.record(ctx, env.EventType, outcomeDuplicate, &h.duplicate)
		log.Info("duplicate delivery skipped")
		return nil
	}

	if herr := h.inner.Handle(ctx, env); herr != nil {
		h.record(ctx, env.EventType, outcomeFailed, &h.failed)
		// unmark so the redelivery is not taken for a duplicate
		if fresh {
			if ferr := h.store.Forget(ctx, id); ferr != nil {
				log.Warn("could not unmark failed event", zap.Error(ferr))
			}
		}
		return herr
	}

	h.record(ctx, env.EventType, outcomeProcessed, &h.processed)
	log.Debug("event handled")
	return nil
}

func (h *IdempotentHandler) record(ctx context.Context, eventType, outcome string, n *atomic.Int64) {
	n.Add(1)
	h.metrics.RecordConsumed(ctx, eventType, outcome)
}

// Stats returns the counts since the handler was created
func (h *IdempotentHandler) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: h.processed.Load(),
		Duplicate: h.duplicate.Load(),
		Failed:    h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
