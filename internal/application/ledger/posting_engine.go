package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the transactional view the posting engine writes through
type Store interface {
	Accounts() ledger.AccountRepository
	Journals() ledger.JournalRepository
	shared.EventRecorder
}

// PostLine is a line together with the role the caller expects its account to play
type PostLine struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
	// ExpectedType is the account type the line's role requires, e.g. LIABILITY for a payable
	ExpectedType ledger.AccountType
}

// DebitLine builds a debit line expecting an account of type t
func DebitLine(accountID uuid.UUID, t ledger.AccountType, amount decimal.Decimal, memo string) PostLine {
	return PostLine{AccountID: accountID, Debit: amount, Credit: decimal.Zero, Memo: memo, ExpectedType: t}
}

// CreditLine builds a credit line expecting an account of type t
func CreditLine(accountID uuid.UUID, t ledger.AccountType, amount decimal.Decimal, memo string) PostLine {
	return PostLine{AccountID: accountID, Debit: decimal.Zero, Credit: amount, Memo: memo, ExpectedType: t}
}

// PostRequest describes a journal entry to post
type PostRequest struct {
	TenantID    uuid.UUID
	Date        time.Time
	Description string
	Lines       []PostLine
	// SkipRoleCheck disables the account type check for callers that post free-form entries
	SkipRoleCheck bool
	SourceType    string
	SourceID      *uuid.UUID
	CreatedBy     uuid.UUID
	CorrelationID string
	CausationID   *uuid.UUID
}

// ReverseRequest describes a reversal of a posted entry
type ReverseRequest struct {
	TenantID uuid.UUID
	EntryID  uuid.UUID
	// Date of the reversal; zero means the original entry's date
	Date          time.Time
	Reason        string
	Actor         uuid.UUID
	CorrelationID string
}

// PostingEngine creates balanced, immutable journal entries
type PostingEngine struct {
	logger *zap.Logger
}

// NewPostingEngine creates a new PostingEngine
func NewPostingEngine(logger *zap.Logger) *PostingEngine {
	return &PostingEngine{logger: logger}
}

// Post validates req and writes one entry with its lines.
// Every check runs before anything is written.
func (p *PostingEngine) Post(ctx context.Context, store Store, req PostRequest) (*ledger.JournalEntry, error) {
	inputs := make([]ledger.LineInput, len(req.Lines))
	for i, l := range req.Lines {
		inputs[i] = ledger.LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo}
	}
	entry, err := ledger.NewJournalEntry(ledger.EntryInput{
		TenantID:      req.TenantID,
		Date:          req.Date,
		Description:   req.Description,
		SourceType:    req.SourceType,
		SourceID:      req.SourceID,
		CorrelationID: req.CorrelationID,
		CausationID:   req.CausationID,
		CreatedBy:     req.CreatedBy,
		Lines:         inputs,
	})
	if err != nil {
		return nil, err
	}

	if !req.SkipRoleCheck {
		for i, l := range req.Lines {
			if l.ExpectedType == "" {
				return nil, shared.NewValidationError("ACCOUNT_ROLE_REQUIRED",
					fmt.Sprintf("line %d has no expected account type", i+1))
			}
		}
	}

	types, err := p.resolveAccounts(ctx, store, req.TenantID, entry.Lines)
	if err != nil {
		return nil, err
	}
	if !req.SkipRoleCheck {
		for i, l := range req.Lines {
			if actual := types[l.AccountID]; actual != l.ExpectedType {
				return nil, shared.NewValidationError("ACCOUNT_TYPE_MISMATCH",
					fmt.Sprintf("line %d: account %s is %s, expected %s", i+1, l.AccountID, actual, l.ExpectedType)).
					WithDetail("account_id", l.AccountID.String()).
					WithDetail("expected", string(l.ExpectedType)).
					WithDetail("actual", string(actual))
			}
		}
	}

	return p.write(ctx, store, entry, types)
}

// Reverse posts an entry swapping every line of the original.
// Reversing an already reversed entry returns the existing reversal.
func (p *PostingEngine) Reverse(ctx context.Context, store Store, req ReverseRequest) (*ledger.JournalEntry, bool, error) {
	original, err := store.Journals().FindByID(ctx, req.TenantID, req.EntryID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, false, shared.NewNotFoundError("JOURNAL_ENTRY_NOT_FOUND", "journal entry "+req.EntryID.String()+" not found")
		}
		return nil, false, err
	}

	existing, err := store.Journals().FindReversalOf(ctx, req.TenantID, req.EntryID)
	switch {
	case err == nil:
		p.logger.Debug("Entry already reversed",
			zap.String("entry_id", req.EntryID.String()),
			zap.String("reversal_id", existing.ID.String()))
		return existing, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, err
	}

	reversal, err := ledger.NewReversal(original, req.Date, req.Reason, req.Actor, req.CorrelationID)
	if err != nil {
		return nil, false, err
	}
	types, err := p.resolveAccounts(ctx, store, req.TenantID, reversal.Lines)
	if err != nil {
		return nil, false, err
	}
	if _, err := p.write(ctx, store, reversal, types); err != nil {
		return nil, false, err
	}
	if err := store.RecordEvents(ctx, ledger.NewJournalEntryReversedEvent(original, reversal, req.Reason)); err != nil {
		return nil, false, err
	}
	return reversal, true, nil
}

func (p *PostingEngine) resolveAccounts(ctx context.Context, store Store, tenantID uuid.UUID, lines []ledger.JournalLine) (map[uuid.UUID]ledger.AccountType, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}

	accounts, err := store.Accounts().FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	types := make(map[uuid.UUID]ledger.AccountType, len(accounts))
	for _, a := range accounts {
		types[a.ID] = a.Type
	}
	for _, id := range ids {
		if _, ok := types[id]; !ok {
			return nil, shared.NewValidationError("ACCOUNT_NOT_FOUND", "account "+id.String()+" does not exist for this tenant").
				WithDetail("account_id", id.String())
		}
	}
	return types, nil
}

func (p *PostingEngine) write(ctx context.Context, store Store, entry *ledger.JournalEntry, types map[uuid.UUID]ledger.AccountType) (*ledger.JournalEntry, error) {
	if !entry.IsBalanced() {
		return nil, shared.NewIntegrityError("UNBALANCED_ENTRY", "entry "+entry.ID.String()+" is not balanced")
	}
	if err := store.Journals().Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create journal entry: %w", err)
	}
	if err := store.RecordEvents(ctx, ledger.NewJournalEntryCreatedEvent(entry, types)); err != nil {
		return nil, err
	}
	p.logger.Debug("Journal entry posted",
		zap.String("entry_id", entry.ID.String()),
		zap.String("tenant_id", entry.TenantID.String()),
		zap.Bool("reversal", entry.IsReversal),
		zap.String("amount", entry.TotalDebit().StringFixed(2)))
	return entry, nil
}
