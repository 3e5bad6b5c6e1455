package handler

import (
	"context"
	"net/http"

	"github.com/erp/ledgercore/internal/application/document"
	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JournalCommands posts and reverses manual entries
type JournalCommands interface {
	Post(ctx context.Context, cc shared.CommandContext, cmd document.PostJournalCommand) (*document.JournalResponse, error)
	Reverse(ctx context.Context, cc shared.CommandContext, cmd document.ReverseJournalCommand) (*document.JournalResponse, error)
}

// JournalQueries reads posted entries
type JournalQueries interface {
	GetJournal(ctx context.Context, tenantID, id uuid.UUID) (*query.JournalDTO, error)
	ListJournals(ctx context.Context, tenantID uuid.UUID, filter query.JournalFilter) (*shared.Paginated[query.JournalDTO], error)
}

// JournalListQuery filters GET /journal-entries
type JournalListQuery struct {
	dto.PageQuery
	From       string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	SourceType string `form:"source_type" binding:"max=50"`
	AccountID  string `form:"account_id" binding:"omitempty,uuid"`
}

// JournalHandler handles journal entry requests
type JournalHandler struct {
	BaseHandler
	commands JournalCommands
	queries  JournalQueries
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(commands JournalCommands, queries JournalQueries) *JournalHandler {
	return &JournalHandler{commands: commands, queries: queries}
}

// Post handles POST /journal-entries
func (h *JournalHandler) Post(c *gin.Context) {
	var req PostJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.commands.Post(c.Request.Context(), commandContext(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// Reverse handles POST /journal-entries/:id/reverse
func (h *JournalHandler) Reverse(c *gin.Context) {
	entryID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req ReverseJournalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	cmd := document.ReverseJournalCommand{EntryID: entryID, Reason: req.Reason}
	if req.Date != "" {
		date, err := parseDate("date", req.Date)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		cmd.Date = date
	}

	resp, err := h.commands.Reverse(c.Request.Context(), commandContext(c), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// Get handles GET /journal-entries/:id
func (h *JournalHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	entry, err := h.queries.GetJournal(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// List handles GET /journal-entries
func (h *JournalHandler) List(c *gin.Context) {
	var q JournalListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter := query.JournalFilter{
		SourceType: q.SourceType,
		Page:       q.Page,
		PageSize:   q.PageSize,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
	}
	var err error
	if filter.From, err = parseOptionalDate("from", q.From); err != nil {
		h.HandleError(c, err)
		return
	}
	if filter.To, err = parseOptionalDate("to", q.To); err != nil {
		h.HandleError(c, err)
		return
	}
	if filter.AccountID, err = parseOptionalUUID("account_id", q.AccountID); err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.queries.ListJournals(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}
