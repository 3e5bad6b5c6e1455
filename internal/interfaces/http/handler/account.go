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

// AccountCommands creates chart-of-accounts entries
type AccountCommands interface {
	CreateAccount(ctx context.Context, cc shared.CommandContext, cmd document.CreateAccountCommand) (*document.AccountResponse, error)
}

// AccountQueries lists accounts
type AccountQueries interface {
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]query.AccountDTO, error)
}

// AccountHandler handles chart-of-accounts requests
type AccountHandler struct {
	BaseHandler
	commands AccountCommands
	queries  AccountQueries
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(commands AccountCommands, queries AccountQueries) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

// Create handles POST /accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.commands.CreateAccount(c.Request.Context(), commandContext(c), req.toCommand())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.CommandResult(c, http.StatusCreated, resp, resp.Replayed)
}

// List handles GET /accounts
func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.queries.ListAccounts(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, accounts)
}
