package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the transactional view the WAC engine works through
type Store interface {
	appledger.Store
	StockMoves() inventory.StockMoveRepository
	StockStates() inventory.StockStateRepository
}

// ApplyResult is the outcome of ApplyMove
type ApplyResult struct {
	Move  *inventory.StockMove
	State *inventory.StockState
	// RecalcFromDate is set when the move was backdated; moves on or after it
	// may carry stale costs until RecalcForward runs
	RecalcFromDate *time.Time
}

// Backdated reports whether the applied move was inserted before the latest move
func (r *ApplyResult) Backdated() bool {
	return r.RecalcFromDate != nil
}

// RecalcRequest describes a forward recalculation
type RecalcRequest struct {
	TenantID uuid.UUID
	FromDate time.Time
	// Keys limits the run to these sequences; empty means every sequence of
	// the tenant with a move on or after FromDate
	Keys          []inventory.StockKey
	Actor         uuid.UUID
	CorrelationID string
}

// CostCorrection describes one move whose cost was rewritten
type CostCorrection struct {
	MoveID          uuid.UUID       `json:"moveId"`
	LocationID      uuid.UUID       `json:"locationId"`
	ItemID          uuid.UUID       `json:"itemId"`
	OldUnitCost     decimal.Decimal `json:"oldUnitCost"`
	NewUnitCost     decimal.Decimal `json:"newUnitCost"`
	OldTotalCost    decimal.Decimal `json:"oldTotalCost"`
	NewTotalCost    decimal.Decimal `json:"newTotalCost"`
	ReversalEntryID *uuid.UUID      `json:"reversalEntryId,omitempty"`
	RepostEntryID   *uuid.UUID      `json:"repostEntryId,omitempty"`
}

// RecalcReport summarizes a forward recalculation
type RecalcReport struct {
	TenantID      uuid.UUID        `json:"tenantId"`
	FromDate      string           `json:"fromDate"`
	KeysScanned   int              `json:"keysScanned"`
	StatesUpdated int              `json:"statesUpdated"`
	Corrections   []CostCorrection `json:"corrections"`
}

// JournalCorrections counts the reversal and re-post entries written
func (r *RecalcReport) JournalCorrections() int {
	n := 0
	for _, c := range r.Corrections {
		if c.ReversalEntryID != nil {
			n++
		}
		if c.RepostEntryID != nil {
			n++
		}
	}
	return n
}

// WACEngine maintains weighted average cost per (tenant, location, item)
type WACEngine struct {
	poster *appledger.PostingEngine
	logger *zap.Logger
}

// NewWACEngine creates a new WACEngine
func NewWACEngine(poster *appledger.PostingEngine, logger *zap.Logger) *WACEngine {
	return &WACEngine{poster: poster, logger: logger}
}

// ApplyMove records move against its running state under a row lock.
//
// The move gets the next sequence number of its key. A move dated before the
// latest applied move is backdated: its cost and the resulting state come from
// a replay of the whole sequence, and the result carries RecalcFromDate.
func (e *WACEngine) ApplyMove(ctx context.Context, store Store, move *inventory.StockMove) (*ApplyResult, error) {
	key := move.Key()
	if err := store.StockStates().EnsureExists(ctx, key); err != nil {
		return nil, fmt.Errorf("ensure stock state: %w", err)
	}
	state, err := store.StockStates().FindForUpdate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock stock state: %w", err)
	}

	move.Seq = state.LastSeq + 1
	backdated := state.IsBackdated(move.MoveDate)

	if !backdated {
		applied, err := state.Apply(move)
		if err != nil {
			return nil, err
		}
		move.UnitCostApplied = applied.UnitCost
		move.TotalCostApplied = applied.TotalCost
	} else {
		history, err := store.StockMoves().ListByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load stock history: %w", err)
		}
		res, err := inventory.Replay(key, append(history, move))
		if err != nil {
			return nil, err
		}
		step, _ := res.Step(move.ID)
		move.UnitCostApplied = step.Applied.UnitCost
		move.TotalCostApplied = step.Applied.TotalCost
		state.CopyTotalsFrom(res.State)
	}

	if err := state.CheckInvariant(); err != nil {
		return nil, err
	}
	if err := store.StockMoves().Create(ctx, move); err != nil {
		return nil, fmt.Errorf("create stock move: %w", err)
	}
	if err := store.StockStates().Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save stock state: %w", err)
	}
	if err := store.RecordEvents(ctx, inventory.NewStockMoveRecordedEvent(move, backdated)); err != nil {
		return nil, err
	}

	result := &ApplyResult{Move: move, State: state}
	if backdated {
		from := move.MoveDate
		result.RecalcFromDate = &from
		e.logger.Info("Backdated stock move applied",
			zap.String("move_id", move.ID.String()),
			zap.String("item_id", move.ItemID.String()),
			zap.Time("move_date", move.MoveDate),
			zap.Time("last_move_date", *state.LastMoveDate))
	}
	return result, nil
}

// RequestRecalc records a stock.recalc.requested event for the asynchronous path
func (e *WACEngine) RequestRecalc(ctx context.Context, store Store, move *inventory.StockMove, from time.Time) error {
	return store.RecordEvents(ctx, inventory.NewStockRecalcRequestedEvent(move, from))
}

// RecalcForward replays every sequence of the tenant with a move on or after
// req.FromDate and rewrites costs that differ from the replay. Journal
// entries linked to corrected moves are reversed and re-posted with the new
// amount. Running it again over a consistent sequence changes nothing.
func (e *WACEngine) RecalcForward(ctx context.Context, store Store, req RecalcRequest) (*RecalcReport, error) {
	from := ledger.DateOf(req.FromDate)
	keys := append([]inventory.StockKey(nil), req.Keys...)
	if len(keys) == 0 {
		var err error
		keys, err = store.StockMoves().FindKeysSince(ctx, req.TenantID, from)
		if err != nil {
			return nil, fmt.Errorf("find stock keys: %w", err)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	report := &RecalcReport{
		TenantID:    req.TenantID,
		FromDate:    from.Format(time.DateOnly),
		KeysScanned: len(keys),
		Corrections: []CostCorrection{},
	}
	for _, key := range keys {
		if err := e.recalcKey(ctx, store, key, req, report); err != nil {
			return nil, err
		}
	}

	if len(report.Corrections) > 0 || report.StatesUpdated > 0 {
		e.logger.Info("Forward recalculation corrected costs",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("from_date", report.FromDate),
			zap.Int("keys", report.KeysScanned),
			zap.Int("moves_corrected", len(report.Corrections)),
			zap.Int("journal_corrections", report.JournalCorrections()))
	}
	return report, nil
}

func (e *WACEngine) recalcKey(ctx context.Context, store Store, key inventory.StockKey, req RecalcRequest, report *RecalcReport) error {
	state, err := store.StockStates().FindForUpdate(ctx, key)
	if err != nil {
		return fmt.Errorf("lock stock state: %w", err)
	}
	moves, err := store.StockMoves().ListByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("load stock history: %w", err)
	}
	res, err := inventory.Replay(key, moves)
	if err != nil {
		return shared.NewIntegrityError("HISTORY_NOT_REPLAYABLE", "stored stock history cannot be replayed").
			WithDetail("item_id", key.ItemID.String()).
			WithDetail("location_id", key.LocationID.String()).
			Wrap(err)
	}

	for _, step := range res.ChangedSteps() {
		c, err := e.correctMove(ctx, store, step, req)
		if err != nil {
			return err
		}
		report.Corrections = append(report.Corrections, *c)
	}

	if !state.SameTotals(res.State) || state.LastSeq < res.State.LastSeq {
		state.CopyTotalsFrom(res.State)
		if err := store.StockStates().Save(ctx, state); err != nil {
			return fmt.Errorf("save stock state: %w", err)
		}
		report.StatesUpdated++
	}
	return e.verify(ctx, store, key, state)
}

func (e *WACEngine) correctMove(ctx context.Context, store Store, step inventory.ReplayStep, req RecalcRequest) (*CostCorrection, error) {
	m := step.Move
	old := inventory.AppliedCost{UnitCost: m.UnitCostApplied, TotalCost: m.TotalCostApplied}
	if m.CostSource == inventory.CostSourceGiven {
		return nil, shared.NewIntegrityError("GIVEN_COST_DIVERGED", "a move with a given cost replayed to a different cost").
			WithDetail("move_id", m.ID.String())
	}

	var originalEntry *uuid.UUID
	if m.JournalEntryID != nil {
		id := *m.JournalEntryID
		originalEntry = &id
	}
	c := &CostCorrection{
		MoveID:       m.ID,
		LocationID:   m.LocationID,
		ItemID:       m.ItemID,
		OldUnitCost:  old.UnitCost,
		NewUnitCost:  step.Applied.UnitCost,
		OldTotalCost: old.TotalCost,
		NewTotalCost: step.Applied.TotalCost,
	}

	if !old.TotalCost.Equal(step.Applied.TotalCost) {
		if m.JournalEntryID == nil {
			if m.Direction == inventory.DirectionOut {
				return nil, shared.NewIntegrityError("MISSING_JOURNAL_LINK", "stock move with ledger impact has no journal entry").
					WithDetail("move_id", m.ID.String())
			}
			e.logger.Warn("Correcting cost of unlinked stock move", zap.String("move_id", m.ID.String()))
		} else {
			rev, repost, err := e.correctJournal(ctx, store, m, old.TotalCost, step.Applied.TotalCost, req)
			if err != nil {
				return nil, err
			}
			c.ReversalEntryID = rev
			c.RepostEntryID = repost
		}
	}

	m.UnitCostApplied = step.Applied.UnitCost
	m.TotalCostApplied = step.Applied.TotalCost
	m.UpdatedAt = time.Now().UTC()
	if err := store.StockMoves().UpdateCost(ctx, m); err != nil {
		return nil, fmt.Errorf("update stock move cost: %w", err)
	}

	ev := inventory.NewStockCostCorrectedEvent(m, old, req.CorrelationID)
	ev.OriginalEntryID = originalEntry
	ev.ReversalEntryID = c.ReversalEntryID
	ev.RepostEntryID = c.RepostEntryID
	if err := store.RecordEvents(ctx, ev); err != nil {
		return nil, err
	}
	return c, nil
}

// correctJournal reverses the entry linked to m and re-posts it at newTotal.
// The re-post keeps the accounts and sides of the original lines and its date.
// It returns the reversal and re-post ids; the move is relinked to the re-post.
func (e *WACEngine) correctJournal(ctx context.Context, store Store, m *inventory.StockMove, oldTotal, newTotal decimal.Decimal, req RecalcRequest) (*uuid.UUID, *uuid.UUID, error) {
	linked, err := store.Journals().FindByID(ctx, m.TenantID, *m.JournalEntryID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.NewIntegrityError("MISSING_JOURNAL_ENTRY", "linked journal entry does not exist").
				WithDetail("move_id", m.ID.String()).
				WithDetail("entry_id", m.JournalEntryID.String())
		}
		return nil, nil, err
	}

	var template *ledger.JournalEntry
	var reversalID *uuid.UUID
	if linked.IsReversal {
		// a previous correction took the cost to zero and left only a reversal
		if !oldTotal.IsZero() || linked.ReversesEntryID == nil {
			return nil, nil, shared.NewIntegrityError("JOURNAL_LINK_MISMATCH", "move is linked to a reversal but carries a cost").
				WithDetail("move_id", m.ID.String())
		}
		template, err = store.Journals().FindByID(ctx, m.TenantID, *linked.ReversesEntryID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		if _, err := linked.RescaledLines(oldTotal); err != nil {
			return nil, nil, err
		}
		if !linked.Lines[0].Amount().Equal(oldTotal) {
			return nil, nil, shared.NewIntegrityError("JOURNAL_AMOUNT_MISMATCH", "linked journal amount differs from the stored move cost").
				WithDetail("move_id", m.ID.String()).
				WithDetail("entry_amount", linked.Lines[0].Amount().StringFixed(2)).
				WithDetail("move_total", oldTotal.StringFixed(2))
		}
		rev, _, err := e.poster.Reverse(ctx, store, appledger.ReverseRequest{
			TenantID:      m.TenantID,
			EntryID:       linked.ID,
			Reason:        "stock cost recalculated for move " + m.ID.String(),
			Actor:         req.Actor,
			CorrelationID: req.CorrelationID,
		})
		if err != nil {
			return nil, nil, err
		}
		reversalID = &rev.ID
		template = linked
	}

	if newTotal.IsZero() {
		if reversalID != nil {
			m.LinkJournal(*reversalID)
		}
		return reversalID, nil, nil
	}

	lines, err := template.RescaledLines(newTotal)
	if err != nil {
		return nil, nil, err
	}
	postLines := make([]appledger.PostLine, len(lines))
	for i, l := range lines {
		postLines[i] = appledger.PostLine{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo}
	}
	cause := linked.ID
	repost, err := e.poster.Post(ctx, store, appledger.PostRequest{
		TenantID:      m.TenantID,
		Date:          template.Date,
		Description:   "Cost correction for stock move " + m.ID.String(),
		Lines:         postLines,
		SkipRoleCheck: true,
		SourceType:    template.SourceType,
		SourceID:      template.SourceID,
		CreatedBy:     req.Actor,
		CorrelationID: req.CorrelationID,
		CausationID:   &cause,
	})
	if err != nil {
		return nil, nil, err
	}
	m.LinkJournal(repost.ID)
	return reversalID, &repost.ID, nil
}

// verify re-reads the sequence after the write and checks it replays to the saved state
func (e *WACEngine) verify(ctx context.Context, store Store, key inventory.StockKey, state *inventory.StockState) error {
	moves, err := store.StockMoves().ListByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("reload stock history: %w", err)
	}
	res, err := inventory.Replay(key, moves)
	if err != nil {
		return shared.NewIntegrityError("HISTORY_NOT_REPLAYABLE", "stock history cannot be replayed after recalculation").Wrap(err)
	}
	if len(res.ChangedSteps()) > 0 || !state.SameTotals(res.State) {
		e.logger.Error("Stock totals diverged after recalculation",
			zap.String("tenant_id", key.TenantID.String()),
			zap.String("location_id", key.LocationID.String()),
			zap.String("item_id", key.ItemID.String()),
			zap.String("stored_value", state.Value.String()),
			zap.String("replayed_value", res.State.Value.String()))
		return shared.NewIntegrityError("COST_DIVERGED", "stored stock totals diverge from the replayed history").
			WithDetail("item_id", key.ItemID.String()).
			WithDetail("location_id", key.LocationID.String())
	}
	return state.CheckInvariant()
}
