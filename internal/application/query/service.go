// Package query serves the read side: journal, bill, stock and summary lookups.
// Nothing here writes; mutations go through the document services.
package query

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/erp/ledgercore/internal/domain/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxPageSize bounds list queries
const MaxPageSize = 100

// JournalFilter selects journal entries
type JournalFilter struct {
	From       *time.Time
	To         *time.Time
	SourceType string
	AccountID  *uuid.UUID
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// MoveFilter selects stock moves
type MoveFilter struct {
	ItemID     *uuid.UUID
	LocationID *uuid.UUID
	Kind       inventory.MoveKind
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// AccountTotals is the sum of posted lines of one account
type AccountTotals struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// ReadStore is the persistence side of the query service
type ReadStore interface {
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]ledger.Account, error)
	AccountTotals(ctx context.Context, tenantID uuid.UUID, asOf time.Time) ([]AccountTotals, error)
	FindJournal(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error)
	ListJournals(ctx context.Context, tenantID uuid.UUID, filter JournalFilter) ([]ledger.JournalEntry, int64, error)
	FindBill(ctx context.Context, tenantID, id uuid.UUID) (*document.Bill, error)
	ListPayments(ctx context.Context, tenantID, billID uuid.UUID) ([]*document.Payment, error)
	ListMoves(ctx context.Context, tenantID uuid.UUID, filter MoveFilter) ([]inventory.StockMove, int64, error)
	FindStockState(ctx context.Context, key inventory.StockKey) (*inventory.StockState, error)
	FindDailySummary(ctx context.Context, tenantID uuid.UUID, date time.Time) (*projection.DailySummary, error)
}

// Service answers read requests scoped to one tenant
type Service struct {
	store  ReadStore
	logger *zap.Logger
}

// NewService creates a new query service
func NewService(store ReadStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// ListAccounts returns the tenant's chart of accounts
func (s *Service) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]AccountDTO, error) {
	accounts, err := s.store.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]AccountDTO, len(accounts))
	for i := range accounts {
		out[i] = toAccountDTO(&accounts[i])
	}
	return out, nil
}

// TrialBalance sums every account's posted lines up to asOf. A ledger whose
// debits and credits differ is an integrity failure and is reported as such.
func (s *Service) TrialBalance(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (*TrialBalanceDTO, error) {
	accounts, err := s.store.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.AccountTotals(ctx, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]AccountTotals, len(totals))
	for _, t := range totals {
		byID[t.AccountID] = t
	}

	tb := &TrialBalanceDTO{AsOf: asOf.Format(time.DateOnly), Accounts: make([]AccountBalanceDTO, 0, len(accounts))}
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i := range accounts {
		a := &accounts[i]
		t, ok := byID[a.ID]
		if !ok {
			continue
		}
		totalDebit = totalDebit.Add(t.Debit)
		totalCredit = totalCredit.Add(t.Credit)
		tb.Accounts = append(tb.Accounts, AccountBalanceDTO{
			AccountDTO: toAccountDTO(a),
			Debit:      t.Debit.StringFixed(2),
			Credit:     t.Credit.StringFixed(2),
			Balance:    balanceOf(a.NormalBalance, t).StringFixed(2),
		})
	}
	tb.TotalDebit = totalDebit.StringFixed(2)
	tb.TotalCredit = totalCredit.StringFixed(2)

	if !totalDebit.Equal(totalCredit) {
		s.logger.Error("trial balance does not balance",
			zap.String("tenant_id", tenantID.String()),
			zap.String("as_of", tb.AsOf),
			zap.String("total_debit", tb.TotalDebit),
			zap.String("total_credit", tb.TotalCredit),
		)
		return nil, shared.NewIntegrityError("LEDGER_UNBALANCED", "posted debits and credits differ").
			WithDetail("total_debit", tb.TotalDebit).
			WithDetail("total_credit", tb.TotalCredit)
	}
	return tb, nil
}

func balanceOf(side ledger.NormalBalance, t AccountTotals) decimal.Decimal {
	if side == ledger.NormalBalanceDebit {
		return t.Debit.Sub(t.Credit)
	}
	return t.Credit.Sub(t.Debit)
}

// GetJournal returns one entry with its lines
func (s *Service) GetJournal(ctx context.Context, tenantID, id uuid.UUID) (*JournalDTO, error) {
	entry, err := s.store.FindJournal(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	dto := toJournalDTO(entry)
	return &dto, nil
}

// ListJournals returns a page of entries without their lines
func (s *Service) ListJournals(ctx context.Context, tenantID uuid.UUID, filter JournalFilter) (*shared.Paginated[JournalDTO], error) {
	filter.Page, filter.PageSize = shared.NormalizePage(filter.Page, filter.PageSize, MaxPageSize)
	entries, total, err := s.store.ListJournals(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]JournalDTO, len(entries))
	for i := range entries {
		items[i] = toJournalDTO(&entries[i])
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// GetBill returns a bill with its lines and payments
func (s *Service) GetBill(ctx context.Context, tenantID, id uuid.UUID) (*BillDTO, error) {
	bill, err := s.store.FindBill(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	dto := toBillDTO(bill, payments)
	return &dto, nil
}

// ListMoves returns a page of stock moves
func (s *Service) ListMoves(ctx context.Context, tenantID uuid.UUID, filter MoveFilter) (*shared.Paginated[StockMoveDTO], error) {
	filter.Page, filter.PageSize = shared.NormalizePage(filter.Page, filter.PageSize, MaxPageSize)
	moves, total, err := s.store.ListMoves(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]StockMoveDTO, len(moves))
	for i := range moves {
		items[i] = toStockMoveDTO(&moves[i])
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// GetStockLevel returns the running quantity, value and average of one sequence
func (s *Service) GetStockLevel(ctx context.Context, key inventory.StockKey) (*StockLevelDTO, error) {
	state, err := s.store.FindStockState(ctx, key)
	if err != nil {
		return nil, err
	}
	dto := &StockLevelDTO{
		LocationID:  state.LocationID,
		ItemID:      state.ItemID,
		Quantity:    state.Quantity.String(),
		Value:       state.Value.StringFixed(2),
		AverageCost: state.AverageCost.String(),
		LastSeq:     state.LastSeq,
	}
	if state.LastMoveDate != nil {
		d := state.LastMoveDate.Format(time.DateOnly)
		dto.LastMoveDate = &d
	}
	return dto, nil
}

// GetDailySummary returns the projected totals of one day
func (s *Service) GetDailySummary(ctx context.Context, tenantID uuid.UUID, date time.Time) (*DailySummaryDTO, error) {
	sum, err := s.store.FindDailySummary(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}
	return &DailySummaryDTO{
		Date:         sum.Date.Format(time.DateOnly),
		TotalIncome:  sum.TotalIncome.StringFixed(2),
		TotalExpense: sum.TotalExpense.StringFixed(2),
		NetIncome:    sum.NetIncome().StringFixed(2),
		EntryCount:   sum.EntryCount,
	}, nil
}
