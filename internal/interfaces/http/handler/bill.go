package handler

import (
	"context"
	"net/http"

	"github.com/erp/ledgercore/internal/application/document"
	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillPoster posts vendor bills
type BillPoster interface {
	PostBill(ctx context.Context, cc shared.CommandContext, cmd document.PostBillCommand) (*document.BillPostedResponse, error)
}

// BillPayer records payments against posted bills
type BillPayer interface {
	PayBill(ctx context.Context, cc shared.CommandContext, cmd document.PayBillCommand) (*document.PaymentRecordedResponse, error)
}

// BillQueries reads bills with their payments
type BillQueries interface {
	GetBill(ctx context.Context, tenantID, id uuid.UUID) (*query.BillDTO, error)
}

// BillHandler handles vendor bill requests
type BillHandler struct {
	BaseHandler
	bills    BillPoster
	payments BillPayer
	queries  BillQueries
}

// NewBillHandler creates a new BillHandler
func NewBillHandler(bills BillPoster, payments BillPayer, queries BillQueries) *BillHandler {
	return &BillHandler{bills: bills, payments: payments, queries: queries}
}

// Post handles POST /bills
func (h *BillHandler) Post(c *gin.Context) {
	var req PostBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.bills.PostBill(c.Request.Context(), commandContext(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// Pay handles POST /bills/:id/payments
func (h *BillHandler) Pay(c *gin.Context) {
	billID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req PayBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	cmd.BillID = billID

	resp, err := h.payments.PayBill(c.Request.Context(), commandContext(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// Get handles GET /bills/:id
func (h *BillHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	bill, err := h.queries.GetBill(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}
