package ledger

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeJournalEntry is the aggregate type of ledger events
const AggregateTypeJournalEntry = "JournalEntry"

// Event type constants
const (
	EventTypeJournalEntryCreated  = "journal.entry.created"
	EventTypeJournalEntryReversed = "journal.entry.reversed"
)

// EventLine is the wire form of a journal line. The projection worker reads
// AccountType to classify income and expense without a lookup.
type EventLine struct {
	AccountID   uuid.UUID       `json:"accountId"`
	AccountType AccountType     `json:"accountType"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
}

// JournalEntryCreatedEvent is raised for every posted entry, reversals included
type JournalEntryCreatedEvent struct {
	shared.BaseDomainEvent
	EntryID         uuid.UUID   `json:"entryId"`
	Date            string      `json:"date"`
	Description     string      `json:"description,omitempty"`
	SourceType      string      `json:"sourceType,omitempty"`
	SourceID        *uuid.UUID  `json:"sourceId,omitempty"`
	IsReversal      bool        `json:"isReversal"`
	ReversesEntryID *uuid.UUID  `json:"reversesEntryId,omitempty"`
	Lines           []EventLine `json:"lines"`
}

// NewJournalEntryCreatedEvent creates the event for entry. accountTypes maps
// account ids to their type and may be partial.
func NewJournalEntryCreatedEvent(entry *JournalEntry, accountTypes map[uuid.UUID]AccountType) *JournalEntryCreatedEvent {
	lines := make([]EventLine, len(entry.Lines))
	for i, l := range entry.Lines {
		lines[i] = EventLine{
			AccountID:   l.AccountID,
			AccountType: accountTypes[l.AccountID],
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        l.Memo,
		}
	}
	ev := &JournalEntryCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJournalEntryCreated, AggregateTypeJournalEntry, entry.ID, entry.TenantID),
		EntryID:         entry.ID,
		Date:            entry.Date.Format(time.DateOnly),
		Description:     entry.Description,
		SourceType:      entry.SourceType,
		SourceID:        entry.SourceID,
		IsReversal:      entry.IsReversal,
		ReversesEntryID: entry.ReversesEntryID,
		Lines:           lines,
	}
	ev.Correlate(entry.CorrelationID, causationOf(entry))
	return ev
}

// JournalEntryReversedEvent is raised on the original entry when it gets reversed
type JournalEntryReversedEvent struct {
	shared.BaseDomainEvent
	EntryID         uuid.UUID `json:"entryId"`
	ReversalEntryID uuid.UUID `json:"reversalEntryId"`
	Reason          string    `json:"reason,omitempty"`
}

// NewJournalEntryReversedEvent creates a new JournalEntryReversedEvent
func NewJournalEntryReversedEvent(original, reversal *JournalEntry, reason string) *JournalEntryReversedEvent {
	ev := &JournalEntryReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJournalEntryReversed, AggregateTypeJournalEntry, original.ID, original.TenantID),
		EntryID:         original.ID,
		ReversalEntryID: reversal.ID,
		Reason:          reason,
	}
	ev.Correlate(reversal.CorrelationID, reversal.ID.String())
	return ev
}

func causationOf(entry *JournalEntry) string {
	if entry.CausationID == nil {
		return ""
	}
	return entry.CausationID.String()
}
