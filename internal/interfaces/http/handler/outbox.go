package handler

import (
	"context"
	"net/http"

	"github.com/erp/ledgercore/internal/application/event"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutboxAdmin inspects and requeues outbox rows
type OutboxAdmin interface {
	GetDeadLetterEntries(ctx context.Context, filter event.OutboxFilter) (*shared.Paginated[event.OutboxEntryDTO], error)
	GetEntry(ctx context.Context, id uuid.UUID) (*event.OutboxEntryDTO, error)
	RetryDeadEntry(ctx context.Context, id uuid.UUID) (*event.OutboxEntryDTO, error)
	RetryAllDeadEntries(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*event.OutboxStatsDTO, error)
}

// OutboxHandler handles outbox management HTTP requests
type OutboxHandler struct {
	BaseHandler
	outbox OutboxAdmin
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outbox OutboxAdmin) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

// RetryAllResponse reports how many dead rows were requeued
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// GetDeadLetterEntries handles GET /system/outbox/dead
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	var filter event.OutboxFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.outbox.GetDeadLetterEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPageResponse(page))
}

// GetEntry handles GET /system/outbox/:id
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	entry, err := h.outbox.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryDeadEntry handles POST /system/outbox/:id/retry
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	entry, err := h.outbox.RetryDeadEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAllDeadEntries handles POST /system/outbox/dead/retry-all
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	count, err := h.outbox.RetryAllDeadEntries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Count: count})
}

// GetStats handles GET /system/outbox/stats
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outbox.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
