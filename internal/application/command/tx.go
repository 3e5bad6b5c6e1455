package command

import (
	"context"

	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(tx Tx) error) error
}

// Tx provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type Tx interface {
	Accounts() ledger.AccountRepository
	Journals() ledger.JournalRepository
	StockMoves() inventory.StockMoveRepository
	StockStates() inventory.StockStateRepository
	Bills() document.BillRepository
	Payments() document.PaymentRepository
	Idempotency() shared.IdempotencyRepository
	Audit() audit.Repository
	Summaries() projection.SummaryRepository
	ProcessedEvents() projection.ProcessedEventRepository

	// RecordEvents writes outbox rows for events in this transaction
	RecordEvents(ctx context.Context, events ...shared.DomainEvent) error
	// RecordedEventIDs lists the ids of events recorded so far, in order
	RecordedEventIDs() []uuid.UUID
}
