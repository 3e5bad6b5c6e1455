package persistence

import (
	"context"

	"github.com/erp/ledgercore/internal/application/command"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/event"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTransactionScope implements command.TransactionScope using GORM transactions.
// Every repository handed to the callback shares the transaction, and so does
// the outbox writer behind RecordEvents.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox *event.OutboxWriter
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB, outbox *event.OutboxWriter) *GormTransactionScope {
	return &GormTransactionScope{db: db, outbox: outbox}
}

// Execute runs fn within a database transaction, rolling back when fn fails
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(tx command.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx, outbox: s.outbox})
	})
}

// gormTx provides the repositories of one transaction
type gormTx struct {
	tx       *gorm.DB
	outbox   *event.OutboxWriter
	eventIDs []uuid.UUID
}

func (t *gormTx) Accounts() ledger.AccountRepository {
	return NewGormAccountRepository(t.tx)
}

func (t *gormTx) Journals() ledger.JournalRepository {
	return NewGormJournalRepository(t.tx)
}

func (t *gormTx) StockMoves() inventory.StockMoveRepository {
	return NewGormStockMoveRepository(t.tx)
}

func (t *gormTx) StockStates() inventory.StockStateRepository {
	return NewGormStockStateRepository(t.tx)
}

func (t *gormTx) Bills() document.BillRepository {
	return NewGormBillRepository(t.tx)
}

func (t *gormTx) Payments() document.PaymentRepository {
	return NewGormPaymentRepository(t.tx)
}

func (t *gormTx) Idempotency() shared.IdempotencyRepository {
	return NewGormIdempotencyRepository(t.tx)
}

func (t *gormTx) Audit() audit.Repository {
	return NewGormAuditRepository(t.tx)
}

func (t *gormTx) Summaries() projection.SummaryRepository {
	return NewGormSummaryRepository(t.tx)
}

func (t *gormTx) ProcessedEvents() projection.ProcessedEventRepository {
	return NewGormProcessedEventRepository(t.tx)
}

// RecordEvents writes outbox rows in this transaction
func (t *gormTx) RecordEvents(ctx context.Context, events ...shared.DomainEvent) error {
	ids, err := t.outbox.WriteWithTx(ctx, t.tx, events...)
	if err != nil {
		return err
	}
	t.eventIDs = append(t.eventIDs, ids...)
	return nil
}

// RecordedEventIDs lists the recorded event ids in order
func (t *gormTx) RecordedEventIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), t.eventIDs...)
}

var (
	_ command.TransactionScope = (*GormTransactionScope)(nil)
	_ command.Tx               = (*gormTx)(nil)
)
