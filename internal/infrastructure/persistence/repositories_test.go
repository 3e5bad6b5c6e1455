package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func createAccount(t *testing.T, db *gorm.DB, tenantID uuid.UUID, code string, typ ledger.AccountType) *ledger.Account {
	t.Helper()
	a, err := ledger.NewAccount(tenantID, code, code+" account", typ)
	require.NoError(t, err)
	require.NoError(t, NewGormAccountRepository(db).Create(context.Background(), a))
	return a
}

func postEntry(t *testing.T, db *gorm.DB, tenantID uuid.UUID, date time.Time, source string, debit, credit uuid.UUID, amount string) *ledger.JournalEntry {
	t.Helper()
	e, err := ledger.NewJournalEntry(ledger.EntryInput{
		TenantID:    tenantID,
		Date:        date,
		Description: source + " entry",
		SourceType:  source,
		Lines: []ledger.LineInput{
			ledger.Debit(debit, dec(amount), ""),
			ledger.Credit(credit, dec(amount), ""),
		},
	})
	require.NoError(t, err)
	require.NoError(t, NewGormJournalRepository(db).Create(context.Background(), e))
	return e
}

func TestGormAccountRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormAccountRepository(db)
	tenant, other := uuid.New(), uuid.New()

	cash := createAccount(t, db, tenant, "1000", ledger.AccountTypeAsset)
	foreign := createAccount(t, db, other, "1000", ledger.AccountTypeAsset)

	t.Run("duplicate code within tenant", func(t *testing.T) {
		dup, err := ledger.NewAccount(tenant, "1000", "again", ledger.AccountTypeAsset)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrDuplicateKey)
	})

	t.Run("FindByIDs omits foreign accounts", func(t *testing.T) {
		found, err := repo.FindByIDs(ctx, tenant, []uuid.UUID{cash.ID, foreign.ID})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, cash.ID, found[0].ID)
		assert.Equal(t, ledger.NormalBalanceDebit, found[0].NormalBalance)
	})

	t.Run("FindByCode", func(t *testing.T) {
		found, err := repo.FindByCode(ctx, other, "1000")
		require.NoError(t, err)
		assert.Equal(t, foreign.ID, found.ID)

		_, err = repo.FindByCode(ctx, tenant, "9999")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormJournalRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormJournalRepository(db)
	tenant := uuid.New()
	cash := createAccount(t, db, tenant, "1000", ledger.AccountTypeAsset)
	sales := createAccount(t, db, tenant, "4000", ledger.AccountTypeIncome)

	entry := postEntry(t, db, tenant, day(5), "manual", cash.ID, sales.ID, "120.50")

	loaded, err := repo.FindByID(ctx, tenant, entry.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 2)
	assert.Equal(t, 1, loaded.Lines[0].LineNo)
	assert.True(t, loaded.Lines[0].Debit.Equal(dec("120.50")))
	assert.True(t, loaded.IsBalanced())

	_, err = repo.FindByID(ctx, uuid.New(), entry.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "entries are tenant scoped")

	_, err = repo.FindReversalOf(ctx, tenant, entry.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	reversal, err := ledger.NewReversal(loaded, day(6), "typo", uuid.New(), "corr-1")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, reversal))

	found, err := repo.FindReversalOf(ctx, tenant, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, reversal.ID, found.ID)
	assert.True(t, found.Lines[0].Credit.Equal(dec("120.50")))

	again, err := ledger.NewReversal(loaded, day(7), "twice", uuid.New(), "corr-2")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, again), shared.ErrDuplicateKey, "an entry is reversed at most once")
}

func newMove(key inventory.StockKey, date time.Time, seq int64, dir inventory.Direction, qty, unit string) *inventory.StockMove {
	kind := inventory.MoveKindReceipt
	if dir == inventory.DirectionOut {
		kind = inventory.MoveKindIssue
	}
	now := time.Now().UTC()
	return &inventory.StockMove{
		ID:               uuid.New(),
		TenantID:         key.TenantID,
		LocationID:       key.LocationID,
		ItemID:           key.ItemID,
		MoveDate:         date,
		Seq:              seq,
		Kind:             kind,
		Direction:        dir,
		CostSource:       inventory.CostSourceAverage,
		Quantity:         dec(qty),
		UnitCostApplied:  dec(unit),
		TotalCostApplied: dec(qty).Mul(dec(unit)).Round(2),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestGormStockMoveRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormStockMoveRepository(db)
	tenant := uuid.New()
	keyA := inventory.StockKey{TenantID: tenant, LocationID: uuid.New(), ItemID: uuid.New()}
	keyB := inventory.StockKey{TenantID: tenant, LocationID: uuid.New(), ItemID: uuid.New()}

	late := newMove(keyA, day(10), 1, inventory.DirectionIn, "10", "5")
	issue := newMove(keyA, day(12), 2, inventory.DirectionOut, "4", "5")
	backdated := newMove(keyA, day(8), 3, inventory.DirectionIn, "10", "8")
	old := newMove(keyB, day(1), 1, inventory.DirectionIn, "1", "1")
	for _, m := range []*inventory.StockMove{late, issue, backdated, old} {
		require.NoError(t, repo.Create(ctx, m))
	}

	t.Run("seq is unique per key", func(t *testing.T) {
		dup := newMove(keyA, day(20), 2, inventory.DirectionIn, "1", "1")
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrDuplicateKey)
	})

	t.Run("ListByKey orders by date then seq", func(t *testing.T) {
		moves, err := repo.ListByKey(ctx, keyA)
		require.NoError(t, err)
		require.Len(t, moves, 3)
		assert.Equal(t, []uuid.UUID{backdated.ID, late.ID, issue.ID}, []uuid.UUID{moves[0].ID, moves[1].ID, moves[2].ID})
	})

	t.Run("FindKeysSince", func(t *testing.T) {
		keys, err := repo.FindKeysSince(ctx, tenant, day(5))
		require.NoError(t, err)
		assert.Equal(t, []inventory.StockKey{keyA}, keys)

		keys, err = repo.FindKeysSince(ctx, tenant, day(1))
		require.NoError(t, err)
		assert.Len(t, keys, 2)
		assert.True(t, keys[0].Less(keys[1]))
	})

	t.Run("UpdateCost", func(t *testing.T) {
		entryID := uuid.New()
		issue.UnitCostApplied = dec("6.5")
		issue.TotalCostApplied = dec("26")
		issue.JournalEntryID = &entryID
		require.NoError(t, repo.UpdateCost(ctx, issue))

		loaded, err := repo.FindByID(ctx, tenant, issue.ID)
		require.NoError(t, err)
		assert.True(t, loaded.TotalCostApplied.Equal(dec("26")))
		require.NotNil(t, loaded.JournalEntryID)
		assert.Equal(t, entryID, *loaded.JournalEntryID)

		missing := newMove(keyA, day(1), 99, inventory.DirectionIn, "1", "1")
		assert.ErrorIs(t, repo.UpdateCost(ctx, missing), shared.ErrNotFound)
	})
}

func TestGormStockStateRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormStockStateRepository(db)
	key := inventory.StockKey{TenantID: uuid.New(), LocationID: uuid.New(), ItemID: uuid.New()}

	_, err := repo.Find(ctx, key)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, repo.EnsureExists(ctx, key))
	require.NoError(t, repo.EnsureExists(ctx, key), "second insert is a no-op")

	state, err := repo.FindForUpdate(ctx, key)
	require.NoError(t, err)
	assert.True(t, state.Quantity.IsZero())

	stale := *state
	lastDate := day(3)
	state.Quantity = dec("10")
	state.Value = dec("50")
	state.AverageCost = dec("5")
	state.LastMoveDate = &lastDate
	state.LastSeq = 1
	require.NoError(t, repo.Save(ctx, state))
	assert.Equal(t, stale.Version+1, state.Version)

	stale.Quantity = dec("99")
	assert.ErrorIs(t, repo.Save(ctx, &stale), shared.ErrConcurrencyConflict)

	loaded, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.True(t, loaded.Quantity.Equal(dec("10")))
	assert.True(t, loaded.SameTotals(state))
}

func TestGormBillRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	bills := NewGormBillRepository(db)
	payments := NewGormPaymentRepository(db)
	tenant, actor := uuid.New(), uuid.New()
	ap := createAccount(t, db, tenant, "2000", ledger.AccountTypeLiability)
	expense := createAccount(t, db, tenant, "6000", ledger.AccountTypeExpense)
	cash := createAccount(t, db, tenant, "1000", ledger.AccountTypeAsset)

	bill, err := document.NewBill(tenant, actor, "VEND-1", day(2), ap.ID, []document.BillLineInput{
		{Kind: document.LineKindService, Amount: dec("300"), AccountID: expense.ID, Description: "consulting"},
	})
	require.NoError(t, err)
	require.NoError(t, bills.Create(ctx, bill))

	locked, err := bills.FindByIDForUpdate(ctx, tenant, bill.ID)
	require.NoError(t, err)
	require.Len(t, locked.Lines, 1)
	assert.True(t, locked.RemainingBalance().Equal(dec("300")))

	payment, err := document.NewPayment(tenant, bill.ID, dec("100"), day(3), cash.ID, actor)
	require.NoError(t, err)
	require.NoError(t, locked.RecordPayment(payment, "corr"))
	require.NoError(t, payments.Create(ctx, payment))
	require.NoError(t, bills.UpdatePaymentState(ctx, locked))

	loaded, err := bills.FindByID(ctx, tenant, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, document.BillStatusPartiallyPaid, loaded.Status)
	assert.True(t, loaded.OutstandingAmount.Equal(dec("200")))
	assert.Equal(t, locked.Version, loaded.Version)

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := bills.FindByID(ctx, tenant, bill.ID)
		require.NoError(t, err)
		stale.Version = loaded.Version
		assert.ErrorIs(t, bills.UpdatePaymentState(ctx, stale), shared.ErrConcurrencyConflict)
	})

	listed, err := payments.ListByBill(ctx, tenant, bill.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, payment.ID, listed[0].ID)

	_, err = bills.FindByID(ctx, uuid.New(), bill.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormIdempotencyRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormIdempotencyRepository(db)
	tenant := uuid.New()
	now := time.Now().UTC()

	rec := shared.NewIdempotencyRecord(tenant, "key-1", "bill.post", now)
	require.NoError(t, repo.Create(ctx, rec))

	dup := shared.NewIdempotencyRecord(tenant, "key-1", "bill.post", now)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrDuplicateKey)

	require.NoError(t, repo.Create(ctx, shared.NewIdempotencyRecord(uuid.New(), "key-1", "bill.post", now)),
		"keys are scoped per tenant")

	rec.Complete([]byte(`{"billId":"b-1"}`), now)
	require.NoError(t, repo.Update(ctx, rec))

	loaded, err := repo.FindByKeyForUpdate(ctx, tenant, "key-1")
	require.NoError(t, err)
	assert.Equal(t, shared.IdempotencyCompleted, loaded.Status)
	assert.JSONEq(t, `{"billId":"b-1"}`, string(loaded.Response))

	_, err = repo.FindByKey(ctx, tenant, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormAuditRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormAuditRepository(db)
	tenant, entity := uuid.New(), uuid.New()

	require.NoError(t, repo.Append(ctx))
	require.NoError(t, repo.Append(ctx,
		audit.NewLog(audit.Entry{TenantID: tenant, Action: audit.ActionBillPosted, EntityType: "bill", EntityID: entity,
			Metadata: map[string]any{"total": "300.00"}}),
		audit.NewLog(audit.Entry{TenantID: tenant, Action: audit.ActionBillPaid, EntityType: "bill", EntityID: entity}),
		audit.NewLog(audit.Entry{TenantID: tenant, Action: audit.ActionBillPosted, EntityType: "bill", EntityID: uuid.New()}),
	))

	logs, err := repo.ListByEntity(ctx, tenant, "bill", entity)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.JSONEq(t, `{"total":"300.00"}`, string(logs[0].Metadata))
}

func TestGormSummaryRepository_ApplyAccumulates(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormSummaryRepository(db)
	tenant := uuid.New()
	date := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

	require.NoError(t, repo.Apply(ctx, tenant, date, projection.Delta{Income: dec("100"), Expense: decimal.Zero}))
	require.NoError(t, repo.Apply(ctx, tenant, date, projection.Delta{Income: dec("20"), Expense: dec("45")}))

	sum, err := repo.Find(ctx, tenant, day(4))
	require.NoError(t, err)
	assert.True(t, sum.TotalIncome.Equal(dec("120")))
	assert.True(t, sum.TotalExpense.Equal(dec("45")))
	assert.Equal(t, 2, sum.EntryCount)
	assert.True(t, sum.NetIncome().Equal(dec("75")))
}

func TestGormProcessedEventRepository(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormProcessedEventRepository(db)
	id := uuid.New()

	isNew, err := repo.MarkProcessed(ctx, "daily_summary", id, "journal.entry.created")
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = repo.MarkProcessed(ctx, "daily_summary", id, "journal.entry.created")
	require.NoError(t, err)
	assert.False(t, isNew)

	isNew, err = repo.MarkProcessed(ctx, "other_consumer", id, "journal.entry.created")
	require.NoError(t, err)
	assert.True(t, isNew, "markers are per consumer")
}
