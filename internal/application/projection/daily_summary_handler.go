package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConsumerDailySummary names the daily summary consumer in processed_events
const ConsumerDailySummary = "daily-summary"

// DailySummaryHandler folds journal.entry.created events into per-day income
// and expense totals. The processed-event marker and the summary update share
// one transaction, so a redelivered event changes nothing.
type DailySummaryHandler struct {
	scope  command.TransactionScope
	logger *zap.Logger
}

// NewDailySummaryHandler creates a new DailySummaryHandler
func NewDailySummaryHandler(scope command.TransactionScope, logger *zap.Logger) *DailySummaryHandler {
	return &DailySummaryHandler{scope: scope, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *DailySummaryHandler) EventTypes() []string {
	return []string{ledger.EventTypeJournalEntryCreated}
}

// Handle applies one journal.entry.created envelope
func (h *DailySummaryHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	var payload ledger.JournalEntryCreatedEvent
	if err := env.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode journal entry event: %w", err)
	}
	date, err := time.Parse(time.DateOnly, payload.Date)
	if err != nil {
		return shared.NewValidationError("INVALID_ENTRY_DATE", "journal entry event has invalid date "+payload.Date).Wrap(err)
	}
	delta := DeltaOf(payload.Lines)

	var duplicate bool
	err = h.scope.Execute(ctx, func(tx command.Tx) error {
		fresh, err := tx.ProcessedEvents().MarkProcessed(ctx, ConsumerDailySummary, env.EventID, env.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		return tx.Summaries().Apply(ctx, env.TenantID, date, delta)
	})
	if err != nil {
		h.logger.Error("failed to apply journal entry to daily summary",
			zap.String("event_id", env.EventID.String()),
			zap.String("entry_id", payload.EntryID.String()),
			zap.Error(err))
		return err
	}

	if duplicate {
		h.logger.Info("duplicate event skipped",
			zap.String("event_id", env.EventID.String()),
			zap.String("consumer", ConsumerDailySummary))
		return nil
	}
	h.logger.Debug("daily summary updated",
		zap.String("tenant_id", env.TenantID.String()),
		zap.String("date", payload.Date),
		zap.String("income", delta.Income.StringFixed(2)),
		zap.String("expense", delta.Expense.StringFixed(2)))
	return nil
}

// DeltaOf computes the income and expense contribution of journal lines.
// Income is credits minus debits on INCOME accounts; expense is debits minus
// credits on EXPENSE accounts.
func DeltaOf(lines []ledger.EventLine) projection.Delta {
	d := projection.Delta{Income: decimal.Zero, Expense: decimal.Zero}
	for _, l := range lines {
		switch l.AccountType {
		case ledger.AccountTypeIncome:
			d.Income = d.Income.Add(l.Credit).Sub(l.Debit)
		case ledger.AccountTypeExpense:
			d.Expense = d.Expense.Add(l.Debit).Sub(l.Credit)
		}
	}
	return d
}
