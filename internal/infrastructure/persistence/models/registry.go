package models

import (
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
)

// All lists every table of the schema in dependency order, for AutoMigrate
// in tests and local development. Production schema changes go through
// the SQL migrations.
func All() []any {
	return []any{
		&ledger.Account{},
		&ledger.JournalEntry{},
		&ledger.JournalLine{},
		&inventory.StockMove{},
		&inventory.StockState{},
		&BillModel{},
		&BillLineModel{},
		&PaymentModel{},
		&shared.IdempotencyRecord{},
		&OutboxEntryModel{},
		&audit.Log{},
		&projection.DailySummary{},
		&projection.ProcessedEvent{},
	}
}
