package document

import (
	"context"
	"errors"

	"github.com/erp/ledgercore/internal/application/command"
	"github.com/erp/ledgercore/internal/domain/audit"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

// CommandCreateAccount is the executor command name for account creation
const CommandCreateAccount = "account.create"

// CreateAccountCommand adds an account to the tenant's chart
type CreateAccountCommand struct {
	Code string
	Name string
	Type ledger.AccountType
}

// AccountResponse is the stored and replayed result of account creation
type AccountResponse struct {
	AccountID     uuid.UUID            `json:"accountId"`
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Type          ledger.AccountType   `json:"type"`
	NormalBalance ledger.NormalBalance `json:"normalBalance"`
	Replayed      bool                 `json:"-"`
}

// AccountService maintains the chart of accounts
type AccountService struct {
	runner
}

// NewAccountService creates a new AccountService
func NewAccountService(deps Deps) *AccountService {
	return &AccountService{runner: newRunner(deps)}
}

// CreateAccount creates an account; codes are unique per tenant
func (s *AccountService) CreateAccount(ctx context.Context, cc shared.CommandContext, cmd CreateAccountCommand) (*AccountResponse, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	account, err := ledger.NewAccount(cc.TenantID, cmd.Code, cmd.Name, cmd.Type)
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, cc, CommandCreateAccount, nil, func(ctx context.Context, tx command.Tx) (any, error) {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			if errors.Is(err, shared.ErrDuplicateKey) {
				return nil, shared.NewConflictError("ACCOUNT_CODE_EXISTS", "an account with this code already exists").
					WithDetail("code", account.Code)
			}
			return nil, err
		}
		err := tx.Audit().Append(ctx, audit.NewLog(audit.Entry{
			TenantID:       cc.TenantID,
			ActorID:        cc.ActorID,
			Action:         audit.ActionAccountCreated,
			EntityType:     "account",
			EntityID:       account.ID,
			IdempotencyKey: cc.ClientKey,
			CorrelationID:  cc.Correlation(),
			Metadata:       map[string]any{"code": account.Code, "type": string(account.Type)},
		}))
		if err != nil {
			return nil, err
		}
		return &AccountResponse{
			AccountID:     account.ID,
			Code:          account.Code,
			Name:          account.Name,
			Type:          account.Type,
			NormalBalance: account.NormalBalance,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var resp AccountResponse
	if err := result.Decode(&resp); err != nil {
		return nil, err
	}
	resp.Replayed = result.Replayed
	return &resp, nil
}
