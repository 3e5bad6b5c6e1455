package handler

import (
	"context"
	"net/http"

	"github.com/erp/ledgercore/internal/application/document"
	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StockCommands moves stock and recalculates costs
type StockCommands interface {
	IssueStock(ctx context.Context, cc shared.CommandContext, cmd document.IssueStockCommand) (*document.StockMoveResponse, error)
	ReceiveStock(ctx context.Context, cc shared.CommandContext, cmd document.ReceiveStockCommand) (*document.StockMoveResponse, error)
	Recalculate(ctx context.Context, cc shared.CommandContext, cmd document.RecalculateCommand) (*document.RecalculateResponse, error)
}

// StockQueries reads moves and running stock levels
type StockQueries interface {
	ListMoves(ctx context.Context, tenantID uuid.UUID, filter query.MoveFilter) (*shared.Paginated[query.StockMoveDTO], error)
	GetStockLevel(ctx context.Context, key inventory.StockKey) (*query.StockLevelDTO, error)
}

// MoveListQuery filters GET /stock/moves
type MoveListQuery struct {
	dto.PageQuery
	ItemID     string `form:"item_id" binding:"omitempty,uuid"`
	LocationID string `form:"location_id" binding:"omitempty,uuid"`
	Kind       string `form:"kind" binding:"omitempty,oneof=RECEIPT ISSUE RETURN ADJUSTMENT"`
	From       string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// StockLevelQuery selects one (location, item) sequence
type StockLevelQuery struct {
	LocationID string `form:"location_id" binding:"required,uuid"`
	ItemID     string `form:"item_id" binding:"required,uuid"`
}

// StockHandler handles stock movement requests
type StockHandler struct {
	BaseHandler
	commands StockCommands
	queries  StockQueries
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(commands StockCommands, queries StockQueries) *StockHandler {
	return &StockHandler{commands: commands, queries: queries}
}

// Issue handles POST /stock/issues
func (h *StockHandler) Issue(c *gin.Context) {
	var req IssueStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.commands.IssueStock(c.Request.Context(), commandContext(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// Receive handles POST /stock/receipts
func (h *StockHandler) Receive(c *gin.Context) {
	var req ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.commands.ReceiveStock(c.Request.Context(), commandContext(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// Recalculate handles POST /stock/recalculate
func (h *StockHandler) Recalculate(c *gin.Context) {
	var req RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	from, err := parseDate("fromDate", req.FromDate)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.commands.Recalculate(c.Request.Context(), commandContext(c), document.RecalculateCommand{FromDate: from})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusOK, resp, resp.Replayed)
}

// ListMoves handles GET /stock/moves
func (h *StockHandler) ListMoves(c *gin.Context) {
	var q MoveListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter := query.MoveFilter{
		Kind:      inventory.MoveKind(q.Kind),
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}
	var err error
	if filter.ItemID, err = parseOptionalUUID("item_id", q.ItemID); err != nil {
		h.HandleError(c, err)
		return
	}
	if filter.LocationID, err = parseOptionalUUID("location_id", q.LocationID); err != nil {
		h.HandleError(c, err)
		return
	}
	if filter.From, err = parseOptionalDate("from", q.From); err != nil {
		h.HandleError(c, err)
		return
	}
	if filter.To, err = parseOptionalDate("to", q.To); err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.queries.ListMoves(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}

// GetLevel handles GET /stock/levels
func (h *StockHandler) GetLevel(c *gin.Context) {
	var q StockLevelQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	key := inventory.StockKey{TenantID: middleware.GetTenantID(c)}
	var err error
	if key.LocationID, err = parseUUID("location_id", q.LocationID); err != nil {
		h.HandleError(c, err)
		return
	}
	if key.ItemID, err = parseUUID("item_id", q.ItemID); err != nil {
		h.HandleError(c, err)
		return
	}

	level, err := h.queries.GetStockLevel(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, level)
}
