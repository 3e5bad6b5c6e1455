package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics counts postings, replays, outbox deliveries and cost
// corrections. A nil *LedgerMetrics records nothing.
type LedgerMetrics struct {
	logger *zap.Logger

	postingsTotal        *Counter
	replaysTotal         *Counter
	costCorrectionsTotal *Counter
	publishedTotal       *Counter
	publishFailuresTotal *Counter
	deadLettersTotal     *Counter
	consumedTotal        *Counter

	outboxBacklog *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// OutboxStatsProvider reports outbox rows per status
type OutboxStatsProvider interface {
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter, logger *zap.Logger) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	counters := []struct {
		dst        **Counter
		name, desc string
		unit       string
	}{
		{&lm.postingsTotal, "ledger_postings_total", "Journal entries posted", "{entries}"},
		{&lm.replaysTotal, "ledger_command_replays_total", "Commands answered from a stored response", "{commands}"},
		{&lm.costCorrectionsTotal, "ledger_cost_corrections_total", "Stock moves re-costed by forward recalculation", "{moves}"},
		{&lm.publishedTotal, "ledger_outbox_published_total", "Outbox events published", "{events}"},
		{&lm.publishFailuresTotal, "ledger_outbox_publish_failures_total", "Failed outbox publish attempts", "{attempts}"},
		{&lm.deadLettersTotal, "ledger_outbox_dead_letters_total", "Outbox events moved to dead letter", "{events}"},
		{&lm.consumedTotal, "ledger_events_consumed_total", "Events seen by idempotent consumers, by outcome", "{events}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	lm.outboxBacklog, err = NewGauge(meter, "ledger_outbox_backlog", "Outbox rows per status", "{events}")
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordPosting counts a posted journal entry
func (lm *LedgerMetrics) RecordPosting(ctx context.Context, tenantID uuid.UUID, source string) {
	if lm == nil {
		return
	}
	lm.postingsTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrSource.String(source))
}

// RecordReplay counts a command replayed from its idempotency record
func (lm *LedgerMetrics) RecordReplay(ctx context.Context, tenantID uuid.UUID, command string) {
	if lm == nil {
		return
	}
	lm.replaysTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrCommand.String(command))
}

// RecordCostCorrections counts moves whose cost changed during recalculation
func (lm *LedgerMetrics) RecordCostCorrections(ctx context.Context, tenantID uuid.UUID, n int) {
	if lm == nil || n <= 0 {
		return
	}
	lm.costCorrectionsTotal.Add(ctx, int64(n), AttrTenantID.String(tenantID.String()))
}

// RecordPublished counts a delivered outbox event
func (lm *LedgerMetrics) RecordPublished(ctx context.Context, eventType string) {
	if lm == nil {
		return
	}
	lm.publishedTotal.Inc(ctx, AttrEventType.String(eventType))
}

// RecordPublishFailure counts a failed delivery attempt
func (lm *LedgerMetrics) RecordPublishFailure(ctx context.Context, eventType string) {
	if lm == nil {
		return
	}
	lm.publishFailuresTotal.Inc(ctx, AttrEventType.String(eventType))
}

// RecordDeadLetter counts an event that ran out of attempts
func (lm *LedgerMetrics) RecordDeadLetter(ctx context.Context, eventType string) {
	if lm == nil {
		return
	}
	lm.deadLettersTotal.Inc(ctx, AttrEventType.String(eventType))
}

// RecordConsumed counts an event seen by a consumer. outcome is one of
// processed, duplicate or failed.
func (lm *LedgerMetrics) RecordConsumed(ctx context.Context, eventType, outcome string) {
	if lm == nil {
		return
	}
	lm.consumedTotal.Inc(ctx, AttrEventType.String(eventType), AttrStatus.String(outcome))
}

// StartPeriodicCollection samples the outbox backlog every interval.
// Only the first call starts the collector.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, provider OutboxStatsProvider, interval time.Duration) {
	if lm == nil || provider == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	lm.collectOnce.Do(func() {
		go lm.runPeriodicCollection(ctx, provider, interval)
	})
}

func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, provider OutboxStatsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lm.collectBacklog(ctx, provider)
	for {
		select {
		case <-ctx.Done():
			return
		case <-lm.stopChan:
			return
		case <-ticker.C:
			lm.collectBacklog(ctx, provider)
		}
	}
}

func (lm *LedgerMetrics) collectBacklog(ctx context.Context, provider OutboxStatsProvider) {
	counts, err := provider.CountByStatus(ctx)
	if err != nil {
		lm.logger.Warn("Failed to collect outbox backlog", zap.Error(err))
		return
	}
	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	} {
		lm.outboxBacklog.Record(ctx, counts[status], AttrStatus.String(string(status)))
	}
}

// Stop stops the periodic collection
func (lm *LedgerMetrics) Stop() {
	if lm == nil {
		return
	}
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
