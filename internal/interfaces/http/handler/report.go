package handler

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportQueries builds ledger reports
type ReportQueries interface {
	TrialBalance(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (*query.TrialBalanceDTO, error)
	GetDailySummary(ctx context.Context, tenantID uuid.UUID, date time.Time) (*query.DailySummaryDTO, error)
}

// TrialBalanceQuery selects the report date; empty means today
type TrialBalanceQuery struct {
	AsOf string `form:"as_of" binding:"omitempty,datetime=2006-01-02"`
}

// DailySummaryQuery selects the projected day
type DailySummaryQuery struct {
	Date string `form:"date" binding:"required,datetime=2006-01-02"`
}

// ReportHandler serves the trial balance and projected daily summaries
type ReportHandler struct {
	BaseHandler
	queries ReportQueries
	now     func() time.Time
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(queries ReportQueries) *ReportHandler {
	return &ReportHandler{queries: queries, now: time.Now}
}

// TrialBalance handles GET /reports/trial-balance
func (h *ReportHandler) TrialBalance(c *gin.Context) {
	var q TrialBalanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	asOf := h.now().UTC()
	if q.AsOf != "" {
		var err error
		if asOf, err = parseDate("as_of", q.AsOf); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	tb, err := h.queries.TrialBalance(c.Request.Context(), middleware.GetTenantID(c), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tb)
}

// DailySummary handles GET /reports/daily-summary
func (h *ReportHandler) DailySummary(c *gin.Context) {
	var q DailySummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	date, err := parseDate("date", q.Date)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	summary, err := h.queries.GetDailySummary(c.Request.Context(), middleware.GetTenantID(c), date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
