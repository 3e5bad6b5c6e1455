package inventory

import (
	"context"
	"sort"
	"testing"
	"time"

	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	accounts map[uuid.UUID]ledger.Account
	entries  map[uuid.UUID]*ledger.JournalEntry
	moves    map[uuid.UUID]inventory.StockMove
	states   map[inventory.StockKey]inventory.StockState
	events   []shared.DomainEvent
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]ledger.Account),
		entries:  make(map[uuid.UUID]*ledger.JournalEntry),
		moves:    make(map[uuid.UUID]inventory.StockMove),
		states:   make(map[inventory.StockKey]inventory.StockState),
	}
}

func (s *memStore) Accounts() ledger.AccountRepository          { return memAccounts{s} }
func (s *memStore) Journals() ledger.JournalRepository          { return memJournals{s} }
func (s *memStore) StockMoves() inventory.StockMoveRepository   { return memMoves{s} }
func (s *memStore) StockStates() inventory.StockStateRepository { return memStates{s} }
func (s *memStore) RecordEvents(_ context.Context, ev ...shared.DomainEvent) error {
	s.events = append(s.events, ev...)
	return nil
}

func (s *memStore) eventsOfType(t string) []shared.DomainEvent {
	var out []shared.DomainEvent
	for _, e := range s.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type memAccounts struct{ s *memStore }

func (r memAccounts) FindByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, id := range ids {
		if a, ok := r.s.accounts[id]; ok && a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAccounts) FindByCode(_ context.Context, tenantID uuid.UUID, code string) (*ledger.Account, error) {
	for _, a := range r.s.accounts {
		if a.TenantID == tenantID && a.Code == code {
			return &a, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memAccounts) Create(_ context.Context, a *ledger.Account) error {
	r.s.accounts[a.ID] = *a
	return nil
}

type memJournals struct{ s *memStore }

func (r memJournals) Create(_ context.Context, e *ledger.JournalEntry) error {
	r.s.entries[e.ID] = e
	return nil
}

func (r memJournals) FindByID(_ context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	if e, ok := r.s.entries[id]; ok && e.TenantID == tenantID {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r memJournals) FindReversalOf(_ context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	for _, e := range r.s.entries {
		if e.TenantID == tenantID && e.ReversesEntryID != nil && *e.ReversesEntryID == id {
			return e, nil
		}
	}
	return nil, shared.ErrNotFound
}

type memMoves struct{ s *memStore }

func (r memMoves) Create(_ context.Context, m *inventory.StockMove) error {
	r.s.moves[m.ID] = *m
	return nil
}

func (r memMoves) FindByID(_ context.Context, tenantID, id uuid.UUID) (*inventory.StockMove, error) {
	if m, ok := r.s.moves[id]; ok && m.TenantID == tenantID {
		return &m, nil
	}
	return nil, shared.ErrNotFound
}

func (r memMoves) ListByKey(_ context.Context, key inventory.StockKey) ([]*inventory.StockMove, error) {
	var out []*inventory.StockMove
	for _, m := range r.s.moves {
		if m.Key() == key {
			cp := m
			out = append(out, &cp)
		}
	}
	inventory.SortMoves(out)
	return out, nil
}

func (r memMoves) FindKeysSince(_ context.Context, tenantID uuid.UUID, from time.Time) ([]inventory.StockKey, error) {
	seen := make(map[inventory.StockKey]bool)
	var out []inventory.StockKey
	for _, m := range r.s.moves {
		if m.TenantID == tenantID && !m.MoveDate.Before(from) && !seen[m.Key()] {
			seen[m.Key()] = true
			out = append(out, m.Key())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (r memMoves) UpdateCost(_ context.Context, m *inventory.StockMove) error {
	r.s.moves[m.ID] = *m
	return nil
}

type memStates struct{ s *memStore }

func (r memStates) EnsureExists(_ context.Context, key inventory.StockKey) error {
	if _, ok := r.s.states[key]; !ok {
		r.s.states[key] = *inventory.NewStockState(key)
	}
	return nil
}

func (r memStates) FindForUpdate(ctx context.Context, key inventory.StockKey) (*inventory.StockState, error) {
	return r.Find(ctx, key)
}

func (r memStates) Find(_ context.Context, key inventory.StockKey) (*inventory.StockState, error) {
	st, ok := r.s.states[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &st, nil
}

func (r memStates) Save(_ context.Context, st *inventory.StockState) error {
	cur := r.s.states[st.Key()]
	if cur.Version != st.Version {
		return shared.ErrConcurrencyConflict
	}
	st.Version++
	r.s.states[st.Key()] = *st
	return nil
}

type fixture struct {
	ctx    context.Context
	store  *memStore
	engine *WACEngine
	poster *appledger.PostingEngine
	key    inventory.StockKey
	cogs   uuid.UUID
	inv    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	tenant := uuid.New()
	cogs, err := ledger.NewAccount(tenant, "5000", "COGS", ledger.AccountTypeExpense)
	require.NoError(t, err)
	inv, err := ledger.NewAccount(tenant, "1400", "Inventory", ledger.AccountTypeAsset)
	require.NoError(t, err)
	store.accounts[cogs.ID] = *cogs
	store.accounts[inv.ID] = *inv

	poster := appledger.NewPostingEngine(zap.NewNop())
	return &fixture{
		ctx:    context.Background(),
		store:  store,
		engine: NewWACEngine(poster, zap.NewNop()),
		poster: poster,
		key:    inventory.StockKey{TenantID: tenant, LocationID: uuid.New(), ItemID: uuid.New()},
		cogs:   cogs.ID,
		inv:    inv.ID,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func (f *fixture) receive(t *testing.T, d int, qty, cost string) *ApplyResult {
	t.Helper()
	c := dec(cost)
	m, err := inventory.NewStockMove(inventory.MoveInput{
		TenantID: f.key.TenantID, LocationID: f.key.LocationID, ItemID: f.key.ItemID,
		MoveDate: day(d), Kind: inventory.MoveKindReceipt, Direction: inventory.DirectionIn,
		Quantity: dec(qty), UnitCost: &c,
	})
	require.NoError(t, err)
	res, err := f.engine.ApplyMove(f.ctx, f.store, m)
	require.NoError(t, err)
	return res
}

// issue applies an OUT move and posts its COGS entry the way the stock service does
func (f *fixture) issue(t *testing.T, d int, qty string) *ApplyResult {
	t.Helper()
	m, err := inventory.NewStockMove(inventory.MoveInput{
		TenantID: f.key.TenantID, LocationID: f.key.LocationID, ItemID: f.key.ItemID,
		MoveDate: day(d), Kind: inventory.MoveKindIssue, Direction: inventory.DirectionOut,
		Quantity: dec(qty),
	})
	require.NoError(t, err)
	res, err := f.engine.ApplyMove(f.ctx, f.store, m)
	require.NoError(t, err)

	entry, err := f.poster.Post(f.ctx, f.store, appledger.PostRequest{
		TenantID: f.key.TenantID,
		Date:     m.MoveDate,
		Lines: []appledger.PostLine{
			appledger.DebitLine(f.cogs, ledger.AccountTypeExpense, m.TotalCostApplied, ""),
			appledger.CreditLine(f.inv, ledger.AccountTypeAsset, m.TotalCostApplied, ""),
		},
	})
	require.NoError(t, err)
	m.LinkJournal(entry.ID)
	require.NoError(t, f.store.StockMoves().UpdateCost(f.ctx, m))
	return res
}

func (f *fixture) recalc(t *testing.T, from time.Time) *RecalcReport {
	t.Helper()
	report, err := f.engine.RecalcForward(f.ctx, f.store, RecalcRequest{TenantID: f.key.TenantID, FromDate: from, CorrelationID: "recalc"})
	require.NoError(t, err)
	return report
}

func TestWACEngine_ApplyMove(t *testing.T) {
	f := newFixture(t)

	r1 := f.receive(t, 1, "10", "100")
	assert.Equal(t, int64(1), r1.Move.Seq)
	assert.False(t, r1.Backdated())

	f.receive(t, 2, "10", "130")
	r3 := f.issue(t, 3, "5")
	assert.True(t, r3.Move.UnitCostApplied.Equal(dec("115")))
	assert.True(t, r3.Move.TotalCostApplied.Equal(dec("575")))

	st := f.store.states[f.key]
	assert.True(t, st.Quantity.Equal(dec("15")))
	assert.True(t, st.Value.Equal(dec("1725")))
	assert.Equal(t, int64(3), st.LastSeq)
	assert.Len(t, f.store.eventsOfType(inventory.EventTypeStockMoveRecorded), 3)
}

func TestWACEngine_ApplyMove_InsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 1, "2", "10")

	m, err := inventory.NewStockMove(inventory.MoveInput{
		TenantID: f.key.TenantID, LocationID: f.key.LocationID, ItemID: f.key.ItemID,
		MoveDate: day(2), Kind: inventory.MoveKindIssue, Direction: inventory.DirectionOut,
		Quantity: dec("3"),
	})
	require.NoError(t, err)
	_, err = f.engine.ApplyMove(f.ctx, f.store, m)
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Len(t, f.store.moves, 1)
	assert.True(t, f.store.states[f.key].Quantity.Equal(dec("2")))
}

func TestWACEngine_BackdatedReceiptCorrectsIssue(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 1, "10", "10")
	issue := f.issue(t, 3, "5")
	originalEntry := *f.store.moves[issue.Move.ID].JournalEntryID
	assert.True(t, issue.Move.TotalCostApplied.Equal(dec("50")))

	late := f.receive(t, 2, "10", "16")
	require.True(t, late.Backdated())
	assert.Equal(t, day(2), *late.RecalcFromDate)
	assert.Equal(t, int64(3), late.Move.Seq)
	assert.True(t, late.State.Value.Equal(dec("195")), "state reflects the replayed history")

	report := f.recalc(t, *late.RecalcFromDate)
	require.Len(t, report.Corrections, 1)
	c := report.Corrections[0]
	assert.Equal(t, issue.Move.ID, c.MoveID)
	assert.True(t, c.OldTotalCost.Equal(dec("50")))
	assert.True(t, c.NewTotalCost.Equal(dec("65")))
	require.NotNil(t, c.ReversalEntryID)
	require.NotNil(t, c.RepostEntryID)
	assert.Equal(t, 2, report.JournalCorrections())

	rev := f.store.entries[*c.ReversalEntryID]
	assert.Equal(t, originalEntry, *rev.ReversesEntryID)
	assert.Equal(t, day(3), rev.Date)
	repost := f.store.entries[*c.RepostEntryID]
	assert.True(t, repost.TotalDebit().Equal(dec("65")))
	assert.Equal(t, originalEntry, *repost.CausationID)

	stored := f.store.moves[issue.Move.ID]
	assert.Equal(t, *c.RepostEntryID, *stored.JournalEntryID)
	assert.True(t, stored.UnitCostApplied.Equal(dec("13")))

	st := f.store.states[f.key]
	assert.True(t, st.Quantity.Equal(dec("15")))
	assert.True(t, st.Value.Equal(dec("195")))
	assert.True(t, st.AverageCost.Equal(dec("13")))

	require.Len(t, f.store.eventsOfType(inventory.EventTypeStockCostCorrected), 1)
	ev := f.store.eventsOfType(inventory.EventTypeStockCostCorrected)[0].(*inventory.StockCostCorrectedEvent)
	assert.Equal(t, originalEntry, *ev.OriginalEntryID)

	t.Run("second run is a no-op", func(t *testing.T) {
		entries := len(f.store.entries)
		report := f.recalc(t, day(1))
		assert.Empty(t, report.Corrections)
		assert.Zero(t, report.StatesUpdated)
		assert.Len(t, f.store.entries, entries)
	})
}

func TestWACEngine_RecalcRejectsUnlinkedIssue(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 1, "10", "10")

	m, err := inventory.NewStockMove(inventory.MoveInput{
		TenantID: f.key.TenantID, LocationID: f.key.LocationID, ItemID: f.key.ItemID,
		MoveDate: day(3), Kind: inventory.MoveKindIssue, Direction: inventory.DirectionOut,
		Quantity: dec("5"),
	})
	require.NoError(t, err)
	_, err = f.engine.ApplyMove(f.ctx, f.store, m)
	require.NoError(t, err)

	f.receive(t, 2, "10", "16")
	_, err = f.engine.RecalcForward(f.ctx, f.store, RecalcRequest{TenantID: f.key.TenantID, FromDate: day(2)})
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, shared.KindIntegrity, de.Kind)
	assert.Equal(t, "MISSING_JOURNAL_LINK", de.Code)
}

func TestWACEngine_RequestRecalc(t *testing.T) {
	f := newFixture(t)
	r := f.receive(t, 5, "1", "1")

	require.NoError(t, f.engine.RequestRecalc(f.ctx, f.store, r.Move, day(2)))
	evs := f.store.eventsOfType(inventory.EventTypeStockRecalcRequested)
	require.Len(t, evs, 1)
	assert.Equal(t, "2024-01-02", evs[0].(*inventory.StockRecalcRequestedEvent).FromDate)
}
