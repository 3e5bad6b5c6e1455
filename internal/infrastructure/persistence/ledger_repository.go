package persistence

import (
	"context"

	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountRepository implements ledger.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByIDs returns the tenant's accounts among ids
func (r *GormAccountRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ledger.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var accounts []ledger.Account
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// FindByCode finds an account by its code within a tenant
func (r *GormAccountRepository) FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*ledger.Account, error) {
	var account ledger.Account
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&account).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

// Create inserts an account
func (r *GormAccountRepository) Create(ctx context.Context, account *ledger.Account) error {
	return translate(r.db.WithContext(ctx).Create(account).Error)
}

// GormJournalRepository implements ledger.JournalRepository using GORM
type GormJournalRepository struct {
	db *gorm.DB
}

// NewGormJournalRepository creates a new GormJournalRepository
func NewGormJournalRepository(db *gorm.DB) *GormJournalRepository {
	return &GormJournalRepository{db: db}
}

// Create inserts the entry; gorm writes the lines through the association
func (r *GormJournalRepository) Create(ctx context.Context, entry *ledger.JournalEntry) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error)
}

// FindByID loads an entry with its lines
func (r *GormJournalRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderByLineNo).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&entry).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// FindReversalOf returns the entry that reverses id
func (r *GormJournalRepository) FindReversalOf(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderByLineNo).
		Where("tenant_id = ? AND reverses_entry_id = ?", tenantID, id).
		First(&entry).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func orderByLineNo(db *gorm.DB) *gorm.DB {
	return db.Order("line_no ASC")
}

var (
	_ ledger.AccountRepository = (*GormAccountRepository)(nil)
	_ ledger.JournalRepository = (*GormJournalRepository)(nil)
)
