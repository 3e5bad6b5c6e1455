package persistence

import (
	"context"
	"testing"

	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormReadStore_Journals(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	store := NewGormReadStore(db)
	tenant := uuid.New()
	cash := createAccount(t, db, tenant, "1000", ledger.AccountTypeAsset)
	sales := createAccount(t, db, tenant, "4000", ledger.AccountTypeIncome)
	rent := createAccount(t, db, tenant, "6100", ledger.AccountTypeExpense)

	e1 := postEntry(t, db, tenant, day(1), "bill", cash.ID, sales.ID, "100")
	e2 := postEntry(t, db, tenant, day(2), "manual", rent.ID, cash.ID, "40")
	e3 := postEntry(t, db, tenant, day(3), "bill", cash.ID, sales.ID, "25")
	postEntry(t, db, uuid.New(), day(3), "bill", uuid.New(), uuid.New(), "5")

	t.Run("default sort is newest first", func(t *testing.T) {
		entries, total, err := store.ListJournals(ctx, tenant, query.JournalFilter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, entries, 3)
		assert.Equal(t, e3.ID, entries[0].ID)
		assert.Equal(t, e1.ID, entries[2].ID)
	})

	t.Run("source filter and ascending order", func(t *testing.T) {
		entries, total, err := store.ListJournals(ctx, tenant, query.JournalFilter{
			SourceType: "bill", SortBy: "date", SortOrder: "asc", Page: 1, PageSize: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, []uuid.UUID{e1.ID, e3.ID}, []uuid.UUID{entries[0].ID, entries[1].ID})
	})

	t.Run("account filter", func(t *testing.T) {
		entries, total, err := store.ListJournals(ctx, tenant, query.JournalFilter{AccountID: &rent.ID, Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, e2.ID, entries[0].ID)
	})

	t.Run("date range and paging", func(t *testing.T) {
		from, to := day(2), day(3)
		entries, total, err := store.ListJournals(ctx, tenant, query.JournalFilter{From: &from, To: &to, Page: 2, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total, "total ignores paging")
		require.Len(t, entries, 1)
		assert.Equal(t, e2.ID, entries[0].ID)
	})

	t.Run("account totals up to a date", func(t *testing.T) {
		totals, err := store.AccountTotals(ctx, tenant, day(2))
		require.NoError(t, err)
		byID := map[uuid.UUID]query.AccountTotals{}
		for _, row := range totals {
			byID[row.AccountID] = row
		}
		require.Len(t, byID, 3)
		assert.True(t, byID[cash.ID].Debit.Equal(dec("100")))
		assert.True(t, byID[cash.ID].Credit.Equal(dec("40")))
		assert.True(t, byID[sales.ID].Credit.Equal(dec("100")))
	})
}

func TestGormReadStore_Moves(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	ctx := context.Background()
	store := NewGormReadStore(db)
	moves := NewGormStockMoveRepository(db)
	tenant := uuid.New()
	key := inventory.StockKey{TenantID: tenant, LocationID: uuid.New(), ItemID: uuid.New()}
	other := inventory.StockKey{TenantID: tenant, LocationID: key.LocationID, ItemID: uuid.New()}

	in := newMove(key, day(1), 1, inventory.DirectionIn, "10", "2")
	out := newMove(key, day(4), 2, inventory.DirectionOut, "3", "2")
	elsewhere := newMove(other, day(2), 1, inventory.DirectionIn, "1", "9")
	for _, m := range []*inventory.StockMove{in, out, elsewhere} {
		require.NoError(t, moves.Create(ctx, m))
	}

	list, total, err := store.ListMoves(ctx, tenant, query.MoveFilter{ItemID: &key.ItemID, SortBy: "seq", SortOrder: "asc", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []uuid.UUID{in.ID, out.ID}, []uuid.UUID{list[0].ID, list[1].ID})

	list, total, err = store.ListMoves(ctx, tenant, query.MoveFilter{Kind: inventory.MoveKindIssue, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, out.ID, list[0].ID)

	list, total, err = store.ListMoves(ctx, tenant, query.MoveFilter{LocationID: &key.LocationID, SortBy: "unknown", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, out.ID, list[0].ID, "unknown sort fields fall back to move_date desc")
}
