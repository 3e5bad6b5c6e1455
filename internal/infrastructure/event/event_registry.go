package event

import (
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
)

// RegisterAllEvents registers every domain event type with the serializer
func RegisterAllEvents(serializer *EnvelopeSerializer) {
	// Ledger
	serializer.Register(ledger.EventTypeJournalEntryCreated, &ledger.JournalEntryCreatedEvent{})
	serializer.Register(ledger.EventTypeJournalEntryReversed, &ledger.JournalEntryReversedEvent{})

	// Inventory
	serializer.Register(inventory.EventTypeStockMoveRecorded, &inventory.StockMoveRecordedEvent{})
	serializer.Register(inventory.EventTypeStockRecalcRequested, &inventory.StockRecalcRequestedEvent{})
	serializer.Register(inventory.EventTypeStockCostCorrected, &inventory.StockCostCorrectedEvent{})

	// Documents
	serializer.Register(document.EventTypeBillPosted, &document.BillPostedEvent{})
	serializer.Register(document.EventTypeBillPaymentRecorded, &document.BillPaymentRecordedEvent{})
}
