package query

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
	"github.com/google/uuid"
)

// AccountDTO represents an account
type AccountDTO struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	NormalBalance string    `json:"normalBalance"`
}

// AccountBalanceDTO is one row of a trial balance
type AccountBalanceDTO struct {
	AccountDTO
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
	Balance string `json:"balance"`
}

// TrialBalanceDTO lists account balances as of a date
type TrialBalanceDTO struct {
	AsOf        string              `json:"asOf"`
	Accounts    []AccountBalanceDTO `json:"accounts"`
	TotalDebit  string              `json:"totalDebit"`
	TotalCredit string              `json:"totalCredit"`
}

// JournalLineDTO represents a journal line
type JournalLineDTO struct {
	LineNo    int       `json:"lineNo"`
	AccountID uuid.UUID `json:"accountId"`
	Debit     string    `json:"debit"`
	Credit    string    `json:"credit"`
	Memo      string    `json:"memo,omitempty"`
}

// JournalDTO represents a journal entry
type JournalDTO struct {
	ID              uuid.UUID        `json:"id"`
	Date            string           `json:"date"`
	Description     string           `json:"description"`
	SourceType      string           `json:"sourceType,omitempty"`
	SourceID        *uuid.UUID       `json:"sourceId,omitempty"`
	CorrelationID   string           `json:"correlationId,omitempty"`
	ReversesEntryID *uuid.UUID       `json:"reversesEntryId,omitempty"`
	IsReversal      bool             `json:"isReversal"`
	CreatedAt       time.Time        `json:"createdAt"`
	Lines           []JournalLineDTO `json:"lines,omitempty"`
}

// BillLineDTO represents a bill line
type BillLineDTO struct {
	LineNo      int        `json:"lineNo"`
	Kind        string     `json:"kind"`
	ItemID      *uuid.UUID `json:"itemId,omitempty"`
	LocationID  *uuid.UUID `json:"locationId,omitempty"`
	Quantity    string     `json:"quantity"`
	UnitCost    string     `json:"unitCost"`
	Amount      string     `json:"amount"`
	AccountID   uuid.UUID  `json:"accountId"`
	StockMoveID *uuid.UUID `json:"stockMoveId,omitempty"`
}

// PaymentDTO represents a bill payment
type PaymentDTO struct {
	ID             uuid.UUID  `json:"id"`
	Amount         string     `json:"amount"`
	PaymentDate    string     `json:"paymentDate"`
	CashAccountID  uuid.UUID  `json:"cashAccountId"`
	JournalEntryID *uuid.UUID `json:"journalEntryId,omitempty"`
}

// BillDTO represents a bill with its payments
type BillDTO struct {
	ID                uuid.UUID     `json:"id"`
	VendorRef         string        `json:"vendorRef"`
	BillDate          string        `json:"billDate"`
	Status            string        `json:"status"`
	TotalAmount       string        `json:"totalAmount"`
	PaidAmount        string        `json:"paidAmount"`
	OutstandingAmount string        `json:"outstandingAmount"`
	JournalEntryID    *uuid.UUID    `json:"journalEntryId,omitempty"`
	PaidAt            *time.Time    `json:"paidAt,omitempty"`
	Version           int           `json:"version"`
	Lines             []BillLineDTO `json:"lines"`
	Payments          []PaymentDTO  `json:"payments"`
}

// StockMoveDTO represents a stock move
type StockMoveDTO struct {
	ID               uuid.UUID  `json:"id"`
	LocationID       uuid.UUID  `json:"locationId"`
	ItemID           uuid.UUID  `json:"itemId"`
	MoveDate         string     `json:"moveDate"`
	Seq              int64      `json:"seq"`
	Kind             string     `json:"kind"`
	Direction        string     `json:"direction"`
	Quantity         string     `json:"quantity"`
	UnitCostApplied  string     `json:"unitCostApplied"`
	TotalCostApplied string     `json:"totalCostApplied"`
	ReferenceType    string     `json:"referenceType,omitempty"`
	ReferenceID      *uuid.UUID `json:"referenceId,omitempty"`
	JournalEntryID   *uuid.UUID `json:"journalEntryId,omitempty"`
}

// StockLevelDTO is the running state of one item at one location
type StockLevelDTO struct {
	LocationID   uuid.UUID `json:"locationId"`
	ItemID       uuid.UUID `json:"itemId"`
	Quantity     string    `json:"quantity"`
	Value        string    `json:"value"`
	AverageCost  string    `json:"averageCost"`
	LastMoveDate *string   `json:"lastMoveDate,omitempty"`
	LastSeq      int64     `json:"lastSeq"`
}

// DailySummaryDTO is the projected income and expense of one day
type DailySummaryDTO struct {
	Date         string `json:"date"`
	TotalIncome  string `json:"totalIncome"`
	TotalExpense string `json:"totalExpense"`
	NetIncome    string `json:"netIncome"`
	EntryCount   int    `json:"entryCount"`
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:            a.ID,
		Code:          a.Code,
		Name:          a.Name,
		Type:          string(a.Type),
		NormalBalance: string(a.NormalBalance),
	}
}

func toJournalDTO(e *ledger.JournalEntry) JournalDTO {
	dto := JournalDTO{
		ID:              e.ID,
		Date:            e.Date.Format(time.DateOnly),
		Description:     e.Description,
		SourceType:      e.SourceType,
		SourceID:        e.SourceID,
		CorrelationID:   e.CorrelationID,
		ReversesEntryID: e.ReversesEntryID,
		IsReversal:      e.IsReversal,
		CreatedAt:       e.CreatedAt,
	}
	for _, l := range e.Lines {
		dto.Lines = append(dto.Lines, JournalLineDTO{
			LineNo:    l.LineNo,
			AccountID: l.AccountID,
			Debit:     l.Debit.StringFixed(2),
			Credit:    l.Credit.StringFixed(2),
			Memo:      l.Memo,
		})
	}
	return dto
}

func toBillDTO(b *document.Bill, payments []*document.Payment) BillDTO {
	dto := BillDTO{
		ID:                b.ID,
		VendorRef:         b.VendorRef,
		BillDate:          b.BillDate.Format(time.DateOnly),
		Status:            string(b.Status),
		TotalAmount:       b.TotalAmount.StringFixed(2),
		PaidAmount:        b.PaidAmount.StringFixed(2),
		OutstandingAmount: b.OutstandingAmount.StringFixed(2),
		JournalEntryID:    b.JournalEntryID,
		PaidAt:            b.PaidAt,
		Version:           b.Version,
		Lines:             make([]BillLineDTO, len(b.Lines)),
		Payments:          make([]PaymentDTO, len(payments)),
	}
	for i, l := range b.Lines {
		dto.Lines[i] = BillLineDTO{
			LineNo:      l.LineNo,
			Kind:        string(l.Kind),
			ItemID:      l.ItemID,
			LocationID:  l.LocationID,
			Quantity:    l.Quantity.String(),
			UnitCost:    l.UnitCost.String(),
			Amount:      l.Amount.StringFixed(2),
			AccountID:   l.AccountID,
			StockMoveID: l.StockMoveID,
		}
	}
	for i, p := range payments {
		dto.Payments[i] = PaymentDTO{
			ID:             p.ID,
			Amount:         p.Amount.StringFixed(2),
			PaymentDate:    p.PaymentDate.Format(time.DateOnly),
			CashAccountID:  p.CashAccountID,
			JournalEntryID: p.JournalEntryID,
		}
	}
	return dto
}

func toStockMoveDTO(m *inventory.StockMove) StockMoveDTO {
	return StockMoveDTO{
		ID:               m.ID,
		LocationID:       m.LocationID,
		ItemID:           m.ItemID,
		MoveDate:         m.MoveDate.Format(time.DateOnly),
		Seq:              m.Seq,
		Kind:             string(m.Kind),
		Direction:        string(m.Direction),
		Quantity:         m.Quantity.String(),
		UnitCostApplied:  m.UnitCostApplied.String(),
		TotalCostApplied: m.TotalCostApplied.StringFixed(2),
		ReferenceType:    m.ReferenceType,
		ReferenceID:      m.ReferenceID,
		JournalEntryID:   m.JournalEntryID,
	}
}
