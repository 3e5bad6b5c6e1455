package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/logger"
	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// commandContext builds the caller identity of a mutating request from the
// headers checked by the tenant middleware.
func commandContext(c *gin.Context) shared.CommandContext {
	return shared.CommandContext{
		TenantID:      middleware.GetTenantID(c),
		ActorID:       middleware.GetUserID(c),
		ClientKey:     c.GetHeader(middleware.HeaderIdempotencyKey),
		CorrelationID: middleware.GetCorrelationID(c),
	}
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// CommandResult answers a mutating command. A replayed result keeps the
// status of the first execution and is flagged with Idempotent-Replayed.
func (h *BaseHandler) CommandResult(c *gin.Context, status int, data any, replayed bool) {
	if replayed {
		c.Header(middleware.HeaderReplayed, "true")
	}
	c.JSON(status, dto.NewSuccessResponse(data))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, message, middleware.GetRequestID(c)))
}

// BindError answers a failed ShouldBind call
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	middleware.HandleBindError(c, err)
}

// HandleError maps an error to a response by its kind. Integrity and
// internal failures are logged for operators; callers see a generic message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)
	_ = c.Error(err)

	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &domainErr):
	case errors.Is(err, context.DeadlineExceeded):
		domainErr = shared.NewDomainError(shared.KindUnavailable, dto.ErrCodeTimeout, "The request timed out")
	default:
		domainErr = shared.NewDomainError(shared.KindInternal, dto.ErrCodeInternal, "An unexpected error occurred")
	}

	status := dto.StatusForKind(domainErr.Kind)
	if !dto.ExposesDetails(domainErr.Kind) {
		logger.L(c.Request.Context()).Error("Request failed",
			zap.String("kind", string(domainErr.Kind)),
			zap.String("code", domainErr.Code),
			zap.Any("details", domainErr.Details),
			zap.Error(err),
		)
	}
	c.JSON(status, dto.NewDomainErrorResponse(domainErr, requestID))
}

// pathID parses a UUID path parameter
func (h *BaseHandler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
