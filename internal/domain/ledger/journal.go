package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinLines is the minimum number of lines a balanced entry can have
const MinLines = 2

// JournalEntry is an immutable, balanced ledger posting.
// Corrections are separate reversal entries; there is no update path.
type JournalEntry struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID     `gorm:"type:uuid;not null;index"`
	Date            time.Time     `gorm:"type:date;not null;index"`
	Description     string        `gorm:"type:varchar(500)"`
	SourceType      string        `gorm:"type:varchar(50)"`
	SourceID        *uuid.UUID    `gorm:"type:uuid;index"`
	CorrelationID   string        `gorm:"type:varchar(100)"`
	CausationID     *uuid.UUID    `gorm:"type:uuid"`
	ReversesEntryID *uuid.UUID    `gorm:"type:uuid;uniqueIndex"`
	IsReversal      bool          `gorm:"not null;default:false"`
	CreatedBy       uuid.UUID     `gorm:"type:uuid"`
	CreatedAt       time.Time     `gorm:"not null"`
	Lines           []JournalLine `gorm:"foreignKey:EntryID"`
}

// TableName returns the table name for GORM
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// JournalLine is one side of a posting. Exactly one of Debit and Credit is non-zero.
type JournalLine struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EntryID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo    int             `gorm:"not null"`
	AccountID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Debit     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Credit    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Memo      string          `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (JournalLine) TableName() string {
	return "journal_lines"
}

// Amount returns the non-zero side of the line
func (l JournalLine) Amount() decimal.Decimal {
	if l.Debit.IsPositive() {
		return l.Debit
	}
	return l.Credit
}

// IsDebit reports whether the line is on the debit side
func (l JournalLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

// LineInput describes a line before it is posted
type LineInput struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// Debit builds a debit line input
func Debit(accountID uuid.UUID, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountID: accountID, Debit: amount, Credit: decimal.Zero, Memo: memo}
}

// Credit builds a credit line input
func Credit(accountID uuid.UUID, amount decimal.Decimal, memo string) LineInput {
	return LineInput{AccountID: accountID, Debit: decimal.Zero, Credit: amount, Memo: memo}
}

// ValidateLines enforces the double-entry rules on a set of lines
func ValidateLines(lines []LineInput) error {
	if len(lines) < MinLines {
		return shared.NewValidationError("TOO_FEW_LINES",
			fmt.Sprintf("journal entry needs at least %d lines, got %d", MinLines, len(lines)))
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, l := range lines {
		if l.AccountID == uuid.Nil {
			return shared.NewValidationError("ACCOUNT_REQUIRED", fmt.Sprintf("line %d has no account", i+1))
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return shared.NewValidationError("NEGATIVE_AMOUNT", fmt.Sprintf("line %d has a negative amount", i+1))
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return shared.NewValidationError("ONE_SIDED_LINE_REQUIRED",
				fmt.Sprintf("line %d must have exactly one non-zero side", i+1))
		}
		if !shared.IsMoney(l.Debit) || !shared.IsMoney(l.Credit) {
			return shared.NewValidationError("AMOUNT_PRECISION",
				fmt.Sprintf("line %d has more than two decimal places", i+1))
		}
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}

	if !totalDebit.Equal(totalCredit) {
		return shared.NewValidationError("UNBALANCED_ENTRY",
			fmt.Sprintf("debits %s do not equal credits %s", totalDebit.StringFixed(2), totalCredit.StringFixed(2))).
			WithDetail("total_debit", totalDebit.StringFixed(2)).
			WithDetail("total_credit", totalCredit.StringFixed(2))
	}
	return nil
}

// EntryInput carries everything needed to build a journal entry
type EntryInput struct {
	TenantID      uuid.UUID
	Date          time.Time
	Description   string
	SourceType    string
	SourceID      *uuid.UUID
	CorrelationID string
	CausationID   *uuid.UUID
	CreatedBy     uuid.UUID
	Lines         []LineInput
}

// NewJournalEntry validates the input and builds an entry with its lines
func NewJournalEntry(in EntryInput) (*JournalEntry, error) {
	if in.TenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "tenant id cannot be empty")
	}
	if in.Date.IsZero() {
		return nil, shared.NewValidationError("DATE_REQUIRED", "entry date is required")
	}
	if err := ValidateLines(in.Lines); err != nil {
		return nil, err
	}

	entry := &JournalEntry{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		Date:          DateOf(in.Date),
		Description:   strings.TrimSpace(in.Description),
		SourceType:    in.SourceType,
		SourceID:      in.SourceID,
		CorrelationID: in.CorrelationID,
		CausationID:   in.CausationID,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     time.Now().UTC(),
	}
	entry.Lines = make([]JournalLine, len(in.Lines))
	for i, l := range in.Lines {
		entry.Lines[i] = JournalLine{
			ID:        uuid.New(),
			EntryID:   entry.ID,
			LineNo:    i + 1,
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Memo:      l.Memo,
		}
	}
	return entry, nil
}

// TotalDebit sums the debit side
func (e *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side
func (e *JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// IsBalanced reports whether debits equal credits
func (e *JournalEntry) IsBalanced() bool {
	return e.TotalDebit().Equal(e.TotalCredit())
}

// ReversalInput builds the reversal of e: every line swapped, linked back to e
func (e *JournalEntry) ReversalInput(date time.Time, reason string, actor uuid.UUID, correlationID string) EntryInput {
	if date.IsZero() {
		date = e.Date
	}
	original := e.ID
	desc := "Reversal of " + e.ID.String()
	if reason != "" {
		desc = desc + ": " + reason
	}
	lines := make([]LineInput, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = LineInput{AccountID: l.AccountID, Debit: l.Credit, Credit: l.Debit, Memo: l.Memo}
	}
	return EntryInput{
		TenantID:      e.TenantID,
		Date:          date,
		Description:   desc,
		SourceType:    e.SourceType,
		SourceID:      e.SourceID,
		CorrelationID: correlationID,
		CausationID:   &original,
		CreatedBy:     actor,
		Lines:         lines,
	}
}

// NewReversal builds a reversal entry for e
func NewReversal(e *JournalEntry, date time.Time, reason string, actor uuid.UUID, correlationID string) (*JournalEntry, error) {
	if e.IsReversal {
		return nil, shared.NewValidationError("CANNOT_REVERSE_REVERSAL", "a reversal entry cannot itself be reversed")
	}
	rev, err := NewJournalEntry(e.ReversalInput(date, reason, actor, correlationID))
	if err != nil {
		return nil, err
	}
	original := e.ID
	rev.IsReversal = true
	rev.ReversesEntryID = &original
	return rev, nil
}

// RescaledLines returns e's lines with every amount replaced by newAmount.
// Only single-amount entries (all lines equal, as posted for one stock move)
// can be rescaled; anything else cannot be corrected mechanically.
func (e *JournalEntry) RescaledLines(newAmount decimal.Decimal) ([]LineInput, error) {
	if len(e.Lines) == 0 {
		return nil, shared.NewIntegrityError("ENTRY_HAS_NO_LINES", "journal entry "+e.ID.String()+" has no lines")
	}
	amount := e.Lines[0].Amount()
	lines := make([]LineInput, len(e.Lines))
	for i, l := range e.Lines {
		if !l.Amount().Equal(amount) {
			return nil, shared.NewIntegrityError("ENTRY_NOT_RESCALABLE",
				"journal entry "+e.ID.String()+" has lines of differing amounts")
		}
		if l.IsDebit() {
			lines[i] = Debit(l.AccountID, newAmount, l.Memo)
		} else {
			lines[i] = Credit(l.AccountID, newAmount, l.Memo)
		}
	}
	return lines, nil
}

// DateOf truncates t to a UTC calendar day
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
