package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccountType_NormalBalance(t *testing.T) {
	tests := []struct {
		accountType AccountType
		expected    NormalBalance
	}{
		{AccountTypeAsset, NormalBalanceDebit},
		{AccountTypeExpense, NormalBalanceDebit},
		{AccountTypeLiability, NormalBalanceCredit},
		{AccountTypeEquity, NormalBalanceCredit},
		{AccountTypeIncome, NormalBalanceCredit},
	}
	for _, tt := range tests {
		t.Run(string(tt.accountType), func(t *testing.T) {
			assert.True(t, tt.accountType.IsValid())
			assert.Equal(t, tt.expected, tt.accountType.NormalBalance())
		})
	}
	assert.False(t, AccountType("REVENUE").IsValid())
}

func TestNewAccount(t *testing.T) {
	acc, err := NewAccount(uuid.New(), " 1400 ", "Inventory", AccountTypeAsset)
	require.NoError(t, err)
	assert.Equal(t, "1400", acc.Code)
	assert.Equal(t, NormalBalanceDebit, acc.NormalBalance)

	_, err = NewAccount(uuid.New(), "", "x", AccountTypeAsset)
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = NewAccount(uuid.New(), "9", "x", AccountType("OTHER"))
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestValidateLines(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name  string
		lines []LineInput
		code  string
	}{
		{"balanced", []LineInput{Debit(a, dec("100.00"), ""), Credit(b, dec("100"), "")}, ""},
		{"single line", []LineInput{Debit(a, dec("1"), "")}, "TOO_FEW_LINES"},
		{"unbalanced", []LineInput{Debit(a, dec("100.01"), ""), Credit(b, dec("100"), "")}, "UNBALANCED_ENTRY"},
		{"both sides", []LineInput{{AccountID: a, Debit: dec("1"), Credit: dec("1")}, Credit(b, dec("0"), "")}, "ONE_SIDED_LINE_REQUIRED"},
		{"zero line", []LineInput{Debit(a, dec("0"), ""), Credit(b, dec("0"), "")}, "ONE_SIDED_LINE_REQUIRED"},
		{"negative", []LineInput{Debit(a, dec("-5"), ""), Credit(b, dec("-5"), "")}, "NEGATIVE_AMOUNT"},
		{"sub-cent", []LineInput{Debit(a, dec("0.005"), ""), Credit(b, dec("0.005"), "")}, "AMOUNT_PRECISION"},
		{"missing account", []LineInput{Debit(uuid.Nil, dec("1"), ""), Credit(b, dec("1"), "")}, "ACCOUNT_REQUIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLines(tt.lines)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var de *shared.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, shared.KindValidation, de.Kind)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestNewJournalEntry(t *testing.T) {
	tenant := uuid.New()
	inv, exp, ap := uuid.New(), uuid.New(), uuid.New()

	entry, err := NewJournalEntry(EntryInput{
		TenantID:    tenant,
		Date:        time.Date(2024, 3, 5, 17, 30, 0, 0, time.FixedZone("X", 3600)),
		Description: " Bill B-1 ",
		Lines: []LineInput{
			Debit(inv, dec("1000"), "inventory"),
			Debit(exp, dec("500"), "freight"),
			Credit(ap, dec("1500"), "payable"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), entry.Date)
	assert.Equal(t, "Bill B-1", entry.Description)
	assert.True(t, entry.IsBalanced())
	assert.True(t, dec("1500").Equal(entry.TotalDebit()))
	require.Len(t, entry.Lines, 3)
	for i, l := range entry.Lines {
		assert.Equal(t, entry.ID, l.EntryID)
		assert.Equal(t, i+1, l.LineNo)
	}
}

func TestNewReversal(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	original, err := NewJournalEntry(EntryInput{
		TenantID:      uuid.New(),
		Date:          time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		CorrelationID: "corr",
		Lines:         []LineInput{Debit(a, dec("60"), ""), Credit(b, dec("60"), "")},
	})
	require.NoError(t, err)

	rev, err := NewReversal(original, time.Time{}, "cost corrected", uuid.Nil, "corr-2")
	require.NoError(t, err)

	assert.True(t, rev.IsReversal)
	assert.Equal(t, original.ID, *rev.ReversesEntryID)
	assert.Equal(t, original.ID, *rev.CausationID)
	assert.Equal(t, original.Date, rev.Date)
	assert.Contains(t, rev.Description, "cost corrected")
	assert.True(t, rev.Lines[0].Credit.Equal(dec("60")))
	assert.True(t, rev.Lines[1].Debit.Equal(dec("60")))

	_, err = NewReversal(rev, time.Time{}, "", uuid.Nil, "")
	assert.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestJournalEntry_RescaledLines(t *testing.T) {
	cogs, inv := uuid.New(), uuid.New()
	entry, err := NewJournalEntry(EntryInput{
		TenantID: uuid.New(),
		Date:     time.Now(),
		Lines:    []LineInput{Debit(cogs, dec("100"), "cogs"), Credit(inv, dec("100"), "inventory")},
	})
	require.NoError(t, err)

	lines, err := entry.RescaledLines(dec("93.33"))
	require.NoError(t, err)
	assert.NoError(t, ValidateLines(lines))
	assert.True(t, lines[0].Debit.Equal(dec("93.33")))
	assert.True(t, lines[1].Credit.Equal(dec("93.33")))

	entry.Lines = append(entry.Lines, JournalLine{AccountID: inv, Credit: dec("5")})
	_, err = entry.RescaledLines(dec("1"))
	assert.True(t, shared.IsKind(err, shared.KindIntegrity))
}

func TestJournalEntryCreatedEvent_Payload(t *testing.T) {
	inc, cash := uuid.New(), uuid.New()
	entry, err := NewJournalEntry(EntryInput{
		TenantID:      uuid.New(),
		Date:          time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		CorrelationID: "k-1",
		Lines:         []LineInput{Debit(cash, dec("10"), ""), Credit(inc, dec("10"), "")},
	})
	require.NoError(t, err)

	ev := NewJournalEntryCreatedEvent(entry, map[uuid.UUID]AccountType{inc: AccountTypeIncome})
	assert.Equal(t, EventTypeJournalEntryCreated, ev.EventType())
	assert.Equal(t, entry.TenantID.String(), ev.PartitionKey())
	assert.Equal(t, "k-1", ev.CorrelationID())

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded struct {
		Date  string `json:"date"`
		Lines []struct {
			AccountType string `json:"accountType"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2024-02-01", decoded.Date)
	assert.Equal(t, "", decoded.Lines[0].AccountType)
	assert.Equal(t, "INCOME", decoded.Lines[1].AccountType)
}
