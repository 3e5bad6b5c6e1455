package document

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/application/command"
	appinventory "github.com/erp/ledgercore/internal/application/inventory"
	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecalcMode selects how backdated moves trigger forward recalculation
type RecalcMode string

const (
	// RecalcSync recalculates inside the command's transaction
	RecalcSync RecalcMode = "sync"
	// RecalcAsync records stock.recalc.requested for the worker
	RecalcAsync RecalcMode = "async"
	// RecalcBoth does both
	RecalcBoth RecalcMode = "both"
)

// ParseRecalcMode parses a configured mode, defaulting to sync
func ParseRecalcMode(s string) RecalcMode {
	switch RecalcMode(s) {
	case RecalcAsync, RecalcBoth:
		return RecalcMode(s)
	}
	return RecalcSync
}

// Dispatcher publishes committed outbox rows without waiting for the sweeper
type Dispatcher interface {
	DispatchAsync(eventIDs []uuid.UUID)
}

// Deps holds the collaborators shared by document services
type Deps struct {
	Executor *command.Executor
	Locker   shared.Locker
	LockTTL  time.Duration
	Posting  *appledger.PostingEngine
	WAC      *appinventory.WACEngine
	// Dispatcher is optional; without it events wait for the sweeper
	Dispatcher Dispatcher
	RecalcMode RecalcMode
	// Metrics is optional
	Metrics *telemetry.LedgerMetrics
	Logger  *zap.Logger
}

// runner runs document commands: resource locks around the idempotent
// executor, then the fast publish path after commit.
type runner struct {
	Deps
}

func newRunner(d Deps) runner {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Second
	}
	if d.RecalcMode == "" {
		d.RecalcMode = RecalcSync
	}
	return runner{Deps: d}
}

func (r runner) run(ctx context.Context, cc shared.CommandContext, name string, lockKeys []string, work command.WorkFunc) (*command.Result, error) {
	var result *command.Result
	err := command.WithLocks(ctx, r.Locker, r.Logger, lockKeys, r.LockTTL, func(ctx context.Context) error {
		var err error
		result, err = r.Executor.Execute(ctx, cc, name, work)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		r.Metrics.RecordReplay(ctx, cc.TenantID, name)
	}
	// a replay dispatches again; rows that are no longer PENDING are skipped
	if r.Dispatcher != nil && len(result.EventIDs) > 0 {
		r.Dispatcher.DispatchAsync(result.EventIDs)
	}
	return result, nil
}

// afterApply handles a backdated move according to the recalc mode.
// It returns the corrections made in this transaction, if any.
func (r runner) afterApply(ctx context.Context, tx command.Tx, cc shared.CommandContext, res *appinventory.ApplyResult) (*appinventory.RecalcReport, error) {
	if !res.Backdated() {
		return nil, nil
	}
	from := *res.RecalcFromDate

	if r.RecalcMode == RecalcAsync || r.RecalcMode == RecalcBoth {
		if err := r.WAC.RequestRecalc(ctx, tx, res.Move, from); err != nil {
			return nil, err
		}
	}
	if r.RecalcMode == RecalcAsync {
		return nil, nil
	}

	report, err := r.WAC.RecalcForward(ctx, tx, appinventory.RecalcRequest{
		TenantID:      cc.TenantID,
		FromDate:      from,
		Keys:          []inventory.StockKey{res.Move.Key()},
		Actor:         cc.ActorID,
		CorrelationID: cc.Correlation(),
	})
	if err != nil {
		return nil, err
	}
	if err := r.auditCorrections(ctx, tx, cc, report); err != nil {
		return nil, err
	}
	r.Metrics.RecordCostCorrections(ctx, cc.TenantID, len(report.Corrections))
	return report, nil
}

func (r runner) auditCorrections(ctx context.Context, tx command.Tx, cc shared.CommandContext, report *appinventory.RecalcReport) error {
	if len(report.Corrections) == 0 {
		return nil
	}
	logs := make([]*audit.Log, 0, len(report.Corrections))
	for _, c := range report.Corrections {
		logs = append(logs, audit.NewLog(audit.Entry{
			TenantID:       cc.TenantID,
			ActorID:        cc.ActorID,
			Action:         audit.ActionStockCostCorrected,
			EntityType:     "stock_move",
			EntityID:       c.MoveID,
			IdempotencyKey: cc.ClientKey,
			CorrelationID:  cc.Correlation(),
			Metadata: map[string]any{
				"old_total_cost":    c.OldTotalCost.StringFixed(2),
				"new_total_cost":    c.NewTotalCost.StringFixed(2),
				"reversal_entry_id": c.ReversalEntryID,
				"repost_entry_id":   c.RepostEntryID,
			},
		}))
	}
	return tx.Audit().Append(ctx, logs...)
}

func stockLockKeys(keys ...inventory.StockKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.LockKey())
	}
	return out
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}
