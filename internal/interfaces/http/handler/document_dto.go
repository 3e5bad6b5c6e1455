package handler

import (
	"fmt"

	"github.com/erp/ledgercore/internal/application/document"
	domaindoc "github.com/erp/ledgercore/internal/domain/document"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/ledger"
)

// CreateAccountRequest adds an account to the chart
type CreateAccountRequest struct {
	Code string `json:"code" binding:"required,max=50"`
	Name string `json:"name" binding:"required,max=200"`
	Type string `json:"type" binding:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
}

func (r CreateAccountRequest) toCommand() document.CreateAccountCommand {
	return document.CreateAccountCommand{Code: r.Code, Name: r.Name, Type: ledger.AccountType(r.Type)}
}

// BillLineRequest is one line of a vendor bill
type BillLineRequest struct {
	Kind        string `json:"kind" binding:"required,oneof=INVENTORY SERVICE"`
	ItemID      string `json:"itemId" binding:"required_if=Kind INVENTORY,omitempty,uuid"`
	LocationID  string `json:"locationId" binding:"required_if=Kind INVENTORY,omitempty,uuid"`
	Quantity    string `json:"quantity" binding:"required_if=Kind INVENTORY,omitempty,decimal_positive"`
	UnitCost    string `json:"unitCost" binding:"required_if=Kind INVENTORY,omitempty,decimal"`
	Amount      string `json:"amount" binding:"required_if=Kind SERVICE,omitempty,decimal_positive"`
	AccountID   string `json:"accountId" binding:"required,uuid"`
	Description string `json:"description" binding:"max=500"`
}

// PostBillRequest posts a vendor bill
type PostBillRequest struct {
	VendorRef        string            `json:"vendorRef" binding:"max=100"`
	BillDate         string            `json:"billDate" binding:"required,datetime=2006-01-02"`
	PayableAccountID string            `json:"payableAccountId" binding:"required,uuid"`
	Lines            []BillLineRequest `json:"lines" binding:"required,min=1,dive"`
}

func (r PostBillRequest) toCommand() (document.PostBillCommand, error) {
	var cmd document.PostBillCommand
	var err error
	cmd.VendorRef = r.VendorRef
	if cmd.BillDate, err = parseDate("billDate", r.BillDate); err != nil {
		return cmd, err
	}
	if cmd.PayableAccountID, err = parseUUID("payableAccountId", r.PayableAccountID); err != nil {
		return cmd, err
	}
	cmd.Lines = make([]document.BillLineCommand, len(r.Lines))
	for i, l := range r.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		line := document.BillLineCommand{Kind: domaindoc.LineKind(l.Kind), Description: l.Description}
		if line.AccountID, err = parseUUID(prefix+"accountId", l.AccountID); err != nil {
			return cmd, err
		}
		if l.ItemID != "" {
			if line.ItemID, err = parseUUID(prefix+"itemId", l.ItemID); err != nil {
				return cmd, err
			}
		}
		if l.LocationID != "" {
			if line.LocationID, err = parseUUID(prefix+"locationId", l.LocationID); err != nil {
				return cmd, err
			}
		}
		if line.Quantity, err = parseDecimal(prefix+"quantity", l.Quantity); err != nil {
			return cmd, err
		}
		if line.UnitCost, err = parseDecimal(prefix+"unitCost", l.UnitCost); err != nil {
			return cmd, err
		}
		if line.Amount, err = parseDecimal(prefix+"amount", l.Amount); err != nil {
			return cmd, err
		}
		cmd.Lines[i] = line
	}
	return cmd, nil
}

// PayBillRequest records a payment against a bill
type PayBillRequest struct {
	Amount        string `json:"amount" binding:"required,decimal_positive"`
	PaymentDate   string `json:"paymentDate" binding:"required,datetime=2006-01-02"`
	CashAccountID string `json:"cashAccountId" binding:"required,uuid"`
}

func (r PayBillRequest) toCommand() (document.PayBillCommand, error) {
	var cmd document.PayBillCommand
	var err error
	if cmd.Amount, err = parseDecimal("amount", r.Amount); err != nil {
		return cmd, err
	}
	if cmd.PaymentDate, err = parseDate("paymentDate", r.PaymentDate); err != nil {
		return cmd, err
	}
	if cmd.CashAccountID, err = parseUUID("cashAccountId", r.CashAccountID); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// IssueStockRequest issues stock at the current average cost
type IssueStockRequest struct {
	LocationID         string `json:"locationId" binding:"required,uuid"`
	ItemID             string `json:"itemId" binding:"required,uuid"`
	Quantity           string `json:"quantity" binding:"required,decimal_positive"`
	MoveDate           string `json:"moveDate" binding:"required,datetime=2006-01-02"`
	Kind               string `json:"kind" binding:"omitempty,oneof=ISSUE ADJUSTMENT"`
	COGSAccountID      string `json:"cogsAccountId" binding:"required,uuid"`
	InventoryAccountID string `json:"inventoryAccountId" binding:"required,uuid"`
	ReferenceType      string `json:"referenceType" binding:"max=50"`
	ReferenceID        string `json:"referenceId" binding:"omitempty,uuid"`
}

func (r IssueStockRequest) toCommand() (document.IssueStockCommand, error) {
	cmd := document.IssueStockCommand{Kind: inventory.MoveKind(r.Kind), ReferenceType: r.ReferenceType}
	var err error
	if cmd.LocationID, err = parseUUID("locationId", r.LocationID); err != nil {
		return cmd, err
	}
	if cmd.ItemID, err = parseUUID("itemId", r.ItemID); err != nil {
		return cmd, err
	}
	if cmd.Quantity, err = parseDecimal("quantity", r.Quantity); err != nil {
		return cmd, err
	}
	if cmd.MoveDate, err = parseDate("moveDate", r.MoveDate); err != nil {
		return cmd, err
	}
	if cmd.COGSAccountID, err = parseUUID("cogsAccountId", r.COGSAccountID); err != nil {
		return cmd, err
	}
	if cmd.InventoryAccountID, err = parseUUID("inventoryAccountId", r.InventoryAccountID); err != nil {
		return cmd, err
	}
	if cmd.ReferenceID, err = parseOptionalUUID("referenceId", r.ReferenceID); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// ReceiveStockRequest receives stock outside of a bill
type ReceiveStockRequest struct {
	LocationID         string `json:"locationId" binding:"required,uuid"`
	ItemID             string `json:"itemId" binding:"required,uuid"`
	Quantity           string `json:"quantity" binding:"required,decimal_positive"`
	UnitCost           string `json:"unitCost" binding:"omitempty,decimal"`
	MoveDate           string `json:"moveDate" binding:"required,datetime=2006-01-02"`
	Kind               string `json:"kind" binding:"omitempty,oneof=RECEIPT RETURN ADJUSTMENT"`
	InventoryAccountID string `json:"inventoryAccountId" binding:"required,uuid"`
	OffsetAccountID    string `json:"offsetAccountId" binding:"required,uuid"`
	OffsetAccountType  string `json:"offsetAccountType" binding:"omitempty,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	ReferenceType      string `json:"referenceType" binding:"max=50"`
	ReferenceID        string `json:"referenceId" binding:"omitempty,uuid"`
}

func (r ReceiveStockRequest) toCommand() (document.ReceiveStockCommand, error) {
	cmd := document.ReceiveStockCommand{
		Kind:              inventory.MoveKind(r.Kind),
		OffsetAccountType: ledger.AccountType(r.OffsetAccountType),
		ReferenceType:     r.ReferenceType,
	}
	var err error
	if cmd.LocationID, err = parseUUID("locationId", r.LocationID); err != nil {
		return cmd, err
	}
	if cmd.ItemID, err = parseUUID("itemId", r.ItemID); err != nil {
		return cmd, err
	}
	if cmd.Quantity, err = parseDecimal("quantity", r.Quantity); err != nil {
		return cmd, err
	}
	if cmd.UnitCost, err = parseOptionalDecimal("unitCost", r.UnitCost); err != nil {
		return cmd, err
	}
	if cmd.MoveDate, err = parseDate("moveDate", r.MoveDate); err != nil {
		return cmd, err
	}
	if cmd.InventoryAccountID, err = parseUUID("inventoryAccountId", r.InventoryAccountID); err != nil {
		return cmd, err
	}
	if cmd.OffsetAccountID, err = parseUUID("offsetAccountId", r.OffsetAccountID); err != nil {
		return cmd, err
	}
	if cmd.ReferenceID, err = parseOptionalUUID("referenceId", r.ReferenceID); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// RecalculateRequest triggers forward recalculation from a date
type RecalculateRequest struct {
	FromDate string `json:"fromDate" binding:"required,datetime=2006-01-02"`
}

// JournalLineRequest is one side of a manual journal line
type JournalLineRequest struct {
	AccountID string `json:"accountId" binding:"required,uuid"`
	Debit     string `json:"debit" binding:"omitempty,decimal"`
	Credit    string `json:"credit" binding:"omitempty,decimal"`
	Memo      string `json:"memo" binding:"max=500"`
}

// PostJournalRequest posts a manual journal entry
type PostJournalRequest struct {
	Date        string               `json:"date" binding:"required,datetime=2006-01-02"`
	Description string               `json:"description" binding:"max=500"`
	Lines       []JournalLineRequest `json:"lines" binding:"required,min=2,dive"`
}

func (r PostJournalRequest) toCommand() (document.PostJournalCommand, error) {
	cmd := document.PostJournalCommand{Description: r.Description}
	var err error
	if cmd.Date, err = parseDate("date", r.Date); err != nil {
		return cmd, err
	}
	cmd.Lines = make([]ledger.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		line := ledger.LineInput{Memo: l.Memo}
		if line.AccountID, err = parseUUID(prefix+"accountId", l.AccountID); err != nil {
			return cmd, err
		}
		if line.Debit, err = parseDecimal(prefix+"debit", l.Debit); err != nil {
			return cmd, err
		}
		if line.Credit, err = parseDecimal(prefix+"credit", l.Credit); err != nil {
			return cmd, err
		}
		cmd.Lines[i] = line
	}
	return cmd, nil
}

// ReverseJournalRequest reverses a posted entry. An empty date keeps the
// original entry's date.
type ReverseJournalRequest struct {
	Date   string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Reason string `json:"reason" binding:"max=500"`
}
