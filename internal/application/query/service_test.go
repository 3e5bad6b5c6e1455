package query

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	accounts    []ledger.Account
	totals      []AccountTotals
	journals    []ledger.JournalEntry
	lastJournal JournalFilter
	summary     *projection.DailySummary
}

func (f *fakeStore) ListAccounts(context.Context, uuid.UUID) ([]ledger.Account, error) {
	return f.accounts, nil
}

func (f *fakeStore) AccountTotals(context.Context, uuid.UUID, time.Time) ([]AccountTotals, error) {
	return f.totals, nil
}

func (f *fakeStore) FindJournal(_ context.Context, _ uuid.UUID, id uuid.UUID) (*ledger.JournalEntry, error) {
	for i := range f.journals {
		if f.journals[i].ID == id {
			return &f.journals[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeStore) ListJournals(_ context.Context, _ uuid.UUID, filter JournalFilter) ([]ledger.JournalEntry, int64, error) {
	f.lastJournal = filter
	return f.journals, int64(len(f.journals)), nil
}

func (f *fakeStore) FindBill(context.Context, uuid.UUID, uuid.UUID) (*document.Bill, error) {
	return nil, shared.ErrNotFound
}

func (f *fakeStore) ListPayments(context.Context, uuid.UUID, uuid.UUID) ([]*document.Payment, error) {
	return nil, nil
}

func (f *fakeStore) ListMoves(context.Context, uuid.UUID, MoveFilter) ([]inventory.StockMove, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) FindStockState(context.Context, inventory.StockKey) (*inventory.StockState, error) {
	return nil, shared.ErrNotFound
}

func (f *fakeStore) FindDailySummary(context.Context, uuid.UUID, time.Time) (*projection.DailySummary, error) {
	if f.summary == nil {
		return nil, shared.ErrNotFound
	}
	return f.summary, nil
}

func account(t *testing.T, tenant uuid.UUID, code string, typ ledger.AccountType) ledger.Account {
	t.Helper()
	a, err := ledger.NewAccount(tenant, code, code, typ)
	require.NoError(t, err)
	return *a
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestService_TrialBalance(t *testing.T) {
	tenant := uuid.New()
	cash := account(t, tenant, "1000", ledger.AccountTypeAsset)
	ap := account(t, tenant, "2000", ledger.AccountTypeLiability)
	unused := account(t, tenant, "3000", ledger.AccountTypeEquity)
	store := &fakeStore{
		accounts: []ledger.Account{cash, ap, unused},
		totals: []AccountTotals{
			{AccountID: cash.ID, Debit: d("500"), Credit: d("120")},
			{AccountID: ap.ID, Debit: d("120"), Credit: d("500")},
		},
	}
	svc := NewService(store, nil)

	tb, err := svc.TrialBalance(context.Background(), tenant, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", tb.AsOf)
	require.Len(t, tb.Accounts, 2, "accounts without postings are omitted")
	assert.Equal(t, "380.00", tb.Accounts[0].Balance, "debit-normal balance")
	assert.Equal(t, "380.00", tb.Accounts[1].Balance, "credit-normal balance")
	assert.Equal(t, "620.00", tb.TotalDebit)
	assert.Equal(t, tb.TotalDebit, tb.TotalCredit)
}

func TestService_TrialBalanceUnbalancedIsIntegrityError(t *testing.T) {
	tenant := uuid.New()
	cash := account(t, tenant, "1000", ledger.AccountTypeAsset)
	store := &fakeStore{
		accounts: []ledger.Account{cash},
		totals:   []AccountTotals{{AccountID: cash.ID, Debit: d("10"), Credit: d("0")}},
	}

	_, err := NewService(store, nil).TrialBalance(context.Background(), tenant, time.Now())
	require.Error(t, err)
	assert.Equal(t, shared.KindIntegrity, shared.KindOf(err))
}

func TestService_ListJournalsNormalizesPaging(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)

	page, err := svc.ListJournals(context.Background(), uuid.New(), JournalFilter{Page: 0, PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, store.lastJournal.Page)
	assert.Equal(t, MaxPageSize, store.lastJournal.PageSize)
	assert.Equal(t, 0, page.TotalPages)
}

func TestService_GetJournal(t *testing.T) {
	tenant := uuid.New()
	entry, err := ledger.NewJournalEntry(ledger.EntryInput{
		TenantID: tenant,
		Date:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Lines: []ledger.LineInput{
			ledger.Debit(uuid.New(), d("12.5"), "stock"),
			ledger.Credit(uuid.New(), d("12.5"), ""),
		},
	})
	require.NoError(t, err)
	svc := NewService(&fakeStore{journals: []ledger.JournalEntry{*entry}}, nil)

	dto, err := svc.GetJournal(context.Background(), tenant, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", dto.Date)
	require.Len(t, dto.Lines, 2)
	assert.Equal(t, "12.50", dto.Lines[0].Debit)
	assert.Equal(t, "0.00", dto.Lines[0].Credit)

	_, err = svc.GetJournal(context.Background(), tenant, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestService_GetDailySummary(t *testing.T) {
	svc := NewService(&fakeStore{summary: &projection.DailySummary{
		Date:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		TotalIncome:  d("100"),
		TotalExpense: d("30.25"),
		EntryCount:   3,
	}}, nil)

	dto, err := svc.GetDailySummary(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "69.75", dto.NetIncome)
	assert.Equal(t, 3, dto.EntryCount)
}
