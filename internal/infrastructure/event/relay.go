package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message attribute names set on every published event
const (
	AttrEventID       = "eventId"
	AttrEventType     = "eventType"
	AttrTenantID      = "tenantId"
	AttrSchemaVersion = "schemaVersion"
	AttrCorrelationID = "correlationId"
)

// RelayConfig holds the retry and lease settings of the relay
type RelayConfig struct {
	BatchSize       int
	ClaimLease      time.Duration
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	DispatchTimeout time.Duration
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:       100,
		ClaimLease:      time.Minute,
		BaseBackoff:     shared.DefaultBaseBackoff,
		MaxBackoff:      shared.DefaultMaxBackoff,
		DispatchTimeout: 10 * time.Second,
	}
}

// Relay moves claimed outbox rows onto the message bus. The fast path
// dispatches the events of a committed command; the sweeper drains
// everything else.
type Relay struct {
	repo    shared.OutboxRepository
	bus     shared.MessageBus
	config  RelayConfig
	metrics *telemetry.LedgerMetrics
	logger  *zap.Logger
	now     func() time.Time

	inflight sync.WaitGroup
}

// NewRelay creates a new relay. metrics may be nil.
func NewRelay(
	repo shared.OutboxRepository,
	bus shared.MessageBus,
	config RelayConfig,
	metrics *telemetry.LedgerMetrics,
	logger *zap.Logger,
) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRelayConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = def.ClaimLease
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = def.DispatchTimeout
	}
	return &Relay{
		repo:    repo,
		bus:     bus,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch publishes the given events if they are still pending.
// Rows another worker holds are skipped; failures are left to the sweeper.
func (r *Relay) Dispatch(ctx context.Context, eventIDs []uuid.UUID) {
	if len(eventIDs) == 0 {
		return
	}
	entries, err := r.repo.ClaimPending(ctx, eventIDs, r.now(), r.config.ClaimLease)
	if err != nil {
		r.logger.Warn("fast path claim failed, leaving events to the sweeper",
			zap.Int("events", len(eventIDs)),
			zap.Error(err),
		)
		return
	}
	r.publishAll(ctx, entries)
}

// DispatchAsync runs Dispatch in the background with its own bounded context
func (r *Relay) DispatchAsync(eventIDs []uuid.UUID) {
	if len(eventIDs) == 0 {
		return
	}
	ids := append([]uuid.UUID(nil), eventIDs...)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.config.DispatchTimeout)
		defer cancel()
		r.Dispatch(ctx, ids)
	}()
}

// Wait blocks until background dispatches finish or ctx is done
func (r *Relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepOnce claims one batch of due rows and publishes it.
// It returns the number of rows claimed.
func (r *Relay) SweepOnce(ctx context.Context) (int, error) {
	entries, err := r.repo.ClaimDue(ctx, r.now(), r.config.ClaimLease, r.config.BatchSize)
	if err != nil {
		return 0, err
	}
	r.publishAll(ctx, entries)
	return len(entries), nil
}

// publishAll publishes entries in order. After a failure the remaining
// entries of the same partition stay claimed so they cannot overtake it;
// they become due again when the lease runs out.
func (r *Relay) publishAll(ctx context.Context, entries []*shared.OutboxEntry) {
	blocked := make(map[string]bool)
	for _, entry := range entries {
		if blocked[entry.PartitionKey] {
			r.logger.Debug("partition blocked by earlier failure, deferring",
				zap.String("event_id", entry.EventID.String()),
				zap.String("partition_key", entry.PartitionKey),
			)
			continue
		}
		if !r.publish(ctx, entry) && entry.PartitionKey != "" {
			blocked[entry.PartitionKey] = true
		}
	}
}

func (r *Relay) publish(ctx context.Context, entry *shared.OutboxEntry) bool {
	msg := shared.BusMessage{
		EventID:      entry.EventID,
		EventType:    entry.EventType,
		PartitionKey: entry.PartitionKey,
		Payload:      entry.Payload,
		Attributes: map[string]string{
			AttrEventID:       entry.EventID.String(),
			AttrEventType:     entry.EventType,
			AttrTenantID:      entry.TenantID.String(),
			AttrSchemaVersion: entry.SchemaVersion,
		},
	}
	if entry.CorrelationID != "" {
		msg.Attributes[AttrCorrelationID] = entry.CorrelationID
	}

	if err := r.bus.Publish(ctx, msg); err != nil {
		r.recordFailure(ctx, entry, err)
		return false
	}

	ok, err := r.repo.MarkPublished(ctx, entry)
	if err != nil {
		// the message is out; the row stays claimed and a later sweep republishes it
		r.logger.Error("failed to mark entry as published",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		r.logger.Debug("entry already published by another worker",
			zap.String("event_id", entry.EventID.String()),
		)
		return true
	}

	r.metrics.RecordPublished(ctx, entry.EventType)
	r.logger.Debug("event published",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	return true
}

func (r *Relay) recordFailure(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error(), r.now(), r.config.BaseBackoff, r.config.MaxBackoff)
	r.metrics.RecordPublishFailure(ctx, entry.EventType)

	if entry.IsDead() {
		r.metrics.RecordDeadLetter(ctx, entry.EventType)
		r.logger.Error("event moved to dead letter",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("tenant_id", entry.TenantID.String()),
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.String("correlation_id", entry.CorrelationID),
			zap.Int("attempts", entry.Attempts),
			zap.String("last_error", entry.LastPublishError),
		)
	} else {
		r.logger.Warn("failed to publish event",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.Int("attempts", entry.Attempts),
			zap.Time("next_attempt_at", entry.NextPublishAttemptAt),
			zap.Error(cause),
		)
	}

	if err := r.repo.Update(ctx, entry); err != nil {
		r.logger.Error("failed to update entry", zap.Error(err))
	}
}
