package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledgercore/internal/application/projection"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/event"
	"github.com/erp/ledgercore/internal/infrastructure/persistence"
	"github.com/erp/ledgercore/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var entryDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

// envelopeFor serializes a journal.entry.created event the way the relay publishes it
func envelopeFor(t *testing.T, tenant uuid.UUID, lines []ledger.LineInput, types map[uuid.UUID]ledger.AccountType) *shared.Envelope {
	t.Helper()
	entry, err := ledger.NewJournalEntry(ledger.EntryInput{TenantID: tenant, Date: entryDate, Lines: lines})
	require.NoError(t, err)

	serializer := event.NewEnvelopeSerializer("ledgercore-test")
	event.RegisterAllEvents(serializer)
	raw, err := serializer.Serialize(ledger.NewJournalEntryCreatedEvent(entry, types))
	require.NoError(t, err)
	env, err := event.DecodeEnvelope(raw)
	require.NoError(t, err)
	return env
}

func TestDailySummaryHandler_AppliesEachEventOnce(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	scope := persistence.NewGormTransactionScope(db, nil)
	h := projection.NewDailySummaryHandler(scope, zap.NewNop())
	ctx := context.Background()

	tenant := uuid.New()
	cash, sales, rent := uuid.New(), uuid.New(), uuid.New()
	types := map[uuid.UUID]ledger.AccountType{
		cash:  ledger.AccountTypeAsset,
		sales: ledger.AccountTypeIncome,
		rent:  ledger.AccountTypeExpense,
	}

	sale := envelopeFor(t, tenant, []ledger.LineInput{
		ledger.Debit(cash, dec("120"), ""),
		ledger.Credit(sales, dec("120"), ""),
	}, types)
	rentPaid := envelopeFor(t, tenant, []ledger.LineInput{
		ledger.Debit(rent, dec("45.50"), ""),
		ledger.Credit(cash, dec("45.50"), ""),
	}, types)

	assert.Equal(t, []string{ledger.EventTypeJournalEntryCreated}, h.EventTypes())
	require.NoError(t, h.Handle(ctx, sale))
	require.NoError(t, h.Handle(ctx, rentPaid))
	require.NoError(t, h.Handle(ctx, sale))

	summary, err := persistence.NewGormSummaryRepository(db).Find(ctx, tenant, entryDate)
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(summary.TotalIncome))
	assert.True(t, dec("45.50").Equal(summary.TotalExpense))
	assert.Equal(t, 2, summary.EntryCount)
}

func TestDailySummaryHandler_RejectsBadDate(t *testing.T) {
	db := persistencetest.NewSQLiteDB(t)
	h := projection.NewDailySummaryHandler(persistence.NewGormTransactionScope(db, nil), zap.NewNop())

	env := &shared.Envelope{
		EventID:   uuid.New(),
		EventType: ledger.EventTypeJournalEntryCreated,
		TenantID:  uuid.New(),
		Payload:   []byte(`{"entryId":"` + uuid.NewString() + `","date":"14/03/2025","lines":[]}`),
	}
	err := h.Handle(context.Background(), env)
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestDeltaOf(t *testing.T) {
	income, expense, asset := uuid.New(), uuid.New(), uuid.New()
	d := projection.DeltaOf([]ledger.EventLine{
		{AccountID: income, AccountType: ledger.AccountTypeIncome, Credit: dec("100"), Debit: decimal.Zero},
		{AccountID: income, AccountType: ledger.AccountTypeIncome, Debit: dec("10"), Credit: decimal.Zero},
		{AccountID: expense, AccountType: ledger.AccountTypeExpense, Debit: dec("30"), Credit: decimal.Zero},
		{AccountID: asset, AccountType: ledger.AccountTypeAsset, Debit: dec("500"), Credit: decimal.Zero},
	})
	assert.True(t, dec("90").Equal(d.Income))
	assert.True(t, dec("30").Equal(d.Expense))
}
