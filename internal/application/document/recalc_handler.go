package document

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	appinventory "github.com/erp/ledgercore/internal/application/inventory"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/shared"
	"go.uber.org/zap"
)

// RecalcHandler runs forward recalculation for stock.recalc.requested events.
// Each event id is used as the idempotency key, so redelivery replays the
// stored report instead of running again.
type RecalcHandler struct {
	runner
}

// NewRecalcHandler creates a new RecalcHandler
func NewRecalcHandler(deps Deps) *RecalcHandler {
	return &RecalcHandler{runner: newRunner(deps)}
}

// EventTypes returns the event types this handler is interested in
func (h *RecalcHandler) EventTypes() []string {
	return []string{inventory.EventTypeStockRecalcRequested}
}

// Handle processes a stock.recalc.requested envelope
func (h *RecalcHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	if env.EventType != inventory.EventTypeStockRecalcRequested {
		h.Logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeStockRecalcRequested),
			zap.String("actual", env.EventType))
		return fmt.Errorf("unexpected event type: expected %s, got %s", inventory.EventTypeStockRecalcRequested, env.EventType)
	}

	var payload inventory.StockRecalcRequestedEvent
	if err := env.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode recalc request: %w", err)
	}
	from, err := time.Parse(time.DateOnly, payload.FromDate)
	if err != nil {
		return shared.NewValidationError("INVALID_FROM_DATE", "recalc request has invalid from date "+payload.FromDate).Wrap(err)
	}

	cc := shared.CommandContext{
		TenantID:      env.TenantID,
		ClientKey:     "event:" + env.EventID.String(),
		CorrelationID: env.CorrelationID,
	}
	key := inventory.StockKey{TenantID: env.TenantID, LocationID: payload.LocationID, ItemID: payload.ItemID}

	h.Logger.Info("processing stock recalculation request",
		zap.String("event_id", env.EventID.String()),
		zap.String("tenant_id", env.TenantID.String()),
		zap.String("from_date", payload.FromDate),
		zap.String("trigger_move_id", payload.TriggerID.String()))

	result, err := h.run(ctx, cc, CommandRecalculateStock, stockLockKeys(key), func(ctx context.Context, tx command.Tx) (any, error) {
		report, err := h.WAC.RecalcForward(ctx, tx, appinventory.RecalcRequest{
			TenantID:      env.TenantID,
			FromDate:      from,
			Keys:          []inventory.StockKey{key},
			CorrelationID: cc.Correlation(),
		})
		if err != nil {
			return nil, err
		}
		if err := h.auditCorrections(ctx, tx, cc, report); err != nil {
			return nil, err
		}
		h.Metrics.RecordCostCorrections(ctx, env.TenantID, len(report.Corrections))
		return report, nil
	})
	if err != nil {
		h.Logger.Error("stock recalculation failed",
			zap.String("event_id", env.EventID.String()),
			zap.String("tenant_id", env.TenantID.String()),
			zap.Error(err))
		return err
	}

	if result.Replayed {
		h.Logger.Info("duplicate recalc request skipped", zap.String("event_id", env.EventID.String()))
	}
	return nil
}
