package ledger

import (
	"strings"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

// AccountType is the accounting classification of an account
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// IsValid returns true if the account type is one of the five classes
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance returns the side on which the account type increases
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// NormalBalance is the side on which an account increases
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// Account is a chart-of-accounts entry. It is immutable once referenced by a posted line.
type Account struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uq_account_code,priority:1"`
	Code          string        `gorm:"type:varchar(50);not null;uniqueIndex:uq_account_code,priority:2"`
	Name          string        `gorm:"type:varchar(200);not null"`
	Type          AccountType   `gorm:"type:varchar(20);not null"`
	NormalBalance NormalBalance `gorm:"type:varchar(10);not null"`
	CreatedAt     time.Time     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// NewAccount creates an account; the normal balance is derived from the type
func NewAccount(tenantID uuid.UUID, code, name string, accountType AccountType) (*Account, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "tenant id cannot be empty")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.NewValidationError("INVALID_CODE", "account code cannot be empty")
	}
	if !accountType.IsValid() {
		return nil, shared.NewValidationError("INVALID_ACCOUNT_TYPE", "unknown account type "+string(accountType))
	}
	return &Account{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Code:          code,
		Name:          strings.TrimSpace(name),
		Type:          accountType,
		NormalBalance: accountType.NormalBalance(),
		CreatedAt:     time.Now().UTC(),
	}, nil
}
