package persistence

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReadStore implements query.ReadStore on the root connection
type GormReadStore struct {
	db *gorm.DB
}

// NewGormReadStore creates a new GormReadStore
func NewGormReadStore(db *gorm.DB) *GormReadStore {
	return &GormReadStore{db: db}
}

// ListAccounts returns the tenant's accounts ordered by code
func (s *GormReadStore) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]ledger.Account, error) {
	var accounts []ledger.Account
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("code ASC").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// AccountTotals sums debits and credits per account over entries dated up to asOf
func (s *GormReadStore) AccountTotals(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]query.AccountTotals, error) {
	var rows []query.AccountTotals
	if err := s.db.WithContext(ctx).
		Table("journal_lines AS l").
		Select("l.account_id AS account_id, COALESCE(SUM(l.debit), 0) AS debit, COALESCE(SUM(l.credit), 0) AS credit").
		Joins("JOIN journal_entries e ON e.id = l.entry_id").
		Where("e.tenant_id = ? AND e.date <= ?", tenantID, dateOnly(asOf)).
		Group("l.account_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindJournal loads an entry with its lines
func (s *GormReadStore) FindJournal(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	return NewGormJournalRepository(s.db).FindByID(ctx, tenantID, id)
}

// ListJournals returns a filtered page of entries and the total match count
func (s *GormReadStore) ListJournals(ctx context.Context, tenantID uuid.UUID, filter query.JournalFilter) ([]ledger.JournalEntry, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("tenant_id = ?", tenantID)
		if filter.From != nil {
			db = db.Where("date >= ?", dateOnly(*filter.From))
		}
		if filter.To != nil {
			db = db.Where("date <= ?", dateOnly(*filter.To))
		}
		if filter.SourceType != "" {
			db = db.Where("source_type = ?", filter.SourceType)
		}
		if filter.AccountID != nil {
			db = db.Where("id IN (?)", s.db.Model(&ledger.JournalLine{}).Select("entry_id").Where("account_id = ?", *filter.AccountID))
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&ledger.JournalEntry{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []ledger.JournalEntry
	q := s.db.WithContext(ctx).Scopes(scope)
	if err := orderAndPage(q, filter.SortBy, filter.SortOrder, JournalSortFields, "date", filter.Page, filter.PageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// FindBill loads a bill with its lines
func (s *GormReadStore) FindBill(ctx context.Context, tenantID, id uuid.UUID) (*document.Bill, error) {
	return NewGormBillRepository(s.db).FindByID(ctx, tenantID, id)
}

// ListPayments returns a bill's payments, oldest first
func (s *GormReadStore) ListPayments(ctx context.Context, tenantID, billID uuid.UUID) ([]*document.Payment, error) {
	return NewGormPaymentRepository(s.db).ListByBill(ctx, tenantID, billID)
}

// ListMoves returns a filtered page of stock moves and the total match count
func (s *GormReadStore) ListMoves(ctx context.Context, tenantID uuid.UUID, filter query.MoveFilter) ([]inventory.StockMove, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("tenant_id = ?", tenantID)
		if filter.ItemID != nil {
			db = db.Where("item_id = ?", *filter.ItemID)
		}
		if filter.LocationID != nil {
			db = db.Where("location_id = ?", *filter.LocationID)
		}
		if filter.Kind != "" {
			db = db.Where("kind = ?", filter.Kind)
		}
		if filter.From != nil {
			db = db.Where("move_date >= ?", dateOnly(*filter.From))
		}
		if filter.To != nil {
			db = db.Where("move_date <= ?", dateOnly(*filter.To))
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&inventory.StockMove{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var moves []inventory.StockMove
	q := s.db.WithContext(ctx).Scopes(scope)
	if err := orderAndPage(q, filter.SortBy, filter.SortOrder, StockMoveSortFields, "move_date", filter.Page, filter.PageSize).
		Find(&moves).Error; err != nil {
		return nil, 0, err
	}
	return moves, total, nil
}

// FindStockState loads the running state of key
func (s *GormReadStore) FindStockState(ctx context.Context, key inventory.StockKey) (*inventory.StockState, error) {
	return NewGormStockStateRepository(s.db).Find(ctx, key)
}

// FindDailySummary loads the projected summary of a day
func (s *GormReadStore) FindDailySummary(ctx context.Context, tenantID uuid.UUID, date time.Time) (*projection.DailySummary, error) {
	return NewGormSummaryRepository(s.db).Find(ctx, tenantID, date)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ query.ReadStore = (*GormReadStore)(nil)
