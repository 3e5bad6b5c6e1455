package ledger

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository reads the chart of accounts
type AccountRepository interface {
	// FindByIDs returns the tenant's accounts among ids; foreign or unknown ids are omitted
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]Account, error)

	// FindByCode finds an account by its code within a tenant
	FindByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Account, error)

	// Create inserts an account
	Create(ctx context.Context, account *Account) error
}

// JournalRepository persists journal entries. Entries are append-only.
type JournalRepository interface {
	// Create inserts the entry together with its lines
	Create(ctx context.Context, entry *JournalEntry) error

	// FindByID loads an entry with its lines, scoped to the tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*JournalEntry, error)

	// FindReversalOf returns the entry reversing id, or shared.ErrNotFound
	FindReversalOf(ctx context.Context, tenantID, id uuid.UUID) (*JournalEntry, error)
}
