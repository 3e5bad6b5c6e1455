package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/ledgercore/internal/application/document"
	"github.com/erp/ledgercore/internal/application/event"
	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/domain/inventory"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type fakeBills struct {
	cc      shared.CommandContext
	post    document.PostBillCommand
	pay     document.PayBillCommand
	err     error
	replay  bool
	queried uuid.UUID
}

func (f *fakeBills) PostBill(_ context.Context, cc shared.CommandContext, cmd document.PostBillCommand) (*document.BillPostedResponse, error) {
	f.cc, f.post = cc, cmd
	if f.err != nil {
		return nil, f.err
	}
	return &document.BillPostedResponse{BillID: uuid.New(), TotalAmount: "120.00", Replayed: f.replay}, nil
}

func (f *fakeBills) PayBill(_ context.Context, cc shared.CommandContext, cmd document.PayBillCommand) (*document.PaymentRecordedResponse, error) {
	f.cc, f.pay = cc, cmd
	if f.err != nil {
		return nil, f.err
	}
	return &document.PaymentRecordedResponse{BillID: cmd.BillID, Amount: cmd.Amount.StringFixed(2)}, nil
}

func (f *fakeBills) GetBill(_ context.Context, _ uuid.UUID, id uuid.UUID) (*query.BillDTO, error) {
	f.queried = id
	if f.err != nil {
		return nil, f.err
	}
	return &query.BillDTO{ID: id, Status: "POSTED"}, nil
}

type fakeJournals struct {
	reverse document.ReverseJournalCommand
	filter  query.JournalFilter
}

func (f *fakeJournals) Post(context.Context, shared.CommandContext, document.PostJournalCommand) (*document.JournalResponse, error) {
	return &document.JournalResponse{EntryID: uuid.New()}, nil
}

func (f *fakeJournals) Reverse(_ context.Context, _ shared.CommandContext, cmd document.ReverseJournalCommand) (*document.JournalResponse, error) {
	f.reverse = cmd
	return &document.JournalResponse{EntryID: uuid.New(), ReversesEntryID: &cmd.EntryID}, nil
}

func (f *fakeJournals) GetJournal(context.Context, uuid.UUID, uuid.UUID) (*query.JournalDTO, error) {
	return nil, shared.ErrNotFound
}

func (f *fakeJournals) ListJournals(_ context.Context, _ uuid.UUID, filter query.JournalFilter) (*shared.Paginated[query.JournalDTO], error) {
	f.filter = filter
	page := shared.NewPaginated([]query.JournalDTO{{ID: uuid.New()}, {ID: uuid.New()}}, 7, 2, 2)
	return &page, nil
}

type fakeStock struct {
	key   inventory.StockKey
	issue document.IssueStockCommand
	err   error
}

func (f *fakeStock) IssueStock(_ context.Context, _ shared.CommandContext, cmd document.IssueStockCommand) (*document.StockMoveResponse, error) {
	f.issue = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &document.StockMoveResponse{MoveID: uuid.New()}, nil
}

func (f *fakeStock) ReceiveStock(context.Context, shared.CommandContext, document.ReceiveStockCommand) (*document.StockMoveResponse, error) {
	return &document.StockMoveResponse{MoveID: uuid.New()}, nil
}

func (f *fakeStock) Recalculate(context.Context, shared.CommandContext, document.RecalculateCommand) (*document.RecalculateResponse, error) {
	return &document.RecalculateResponse{Replayed: true}, nil
}

func (f *fakeStock) ListMoves(context.Context, uuid.UUID, query.MoveFilter) (*shared.Paginated[query.StockMoveDTO], error) {
	page := shared.NewPaginated([]query.StockMoveDTO{}, 0, 1, 20)
	return &page, nil
}

func (f *fakeStock) GetStockLevel(_ context.Context, key inventory.StockKey) (*query.StockLevelDTO, error) {
	f.key = key
	return &query.StockLevelDTO{LocationID: key.LocationID, ItemID: key.ItemID, Quantity: "4"}, nil
}

type fakeReports struct {
	asOf time.Time
}

func (f *fakeReports) TrialBalance(_ context.Context, _ uuid.UUID, asOf time.Time) (*query.TrialBalanceDTO, error) {
	f.asOf = asOf
	return &query.TrialBalanceDTO{AsOf: asOf.Format(time.DateOnly)}, nil
}

func (f *fakeReports) GetDailySummary(context.Context, uuid.UUID, time.Time) (*query.DailySummaryDTO, error) {
	return nil, shared.NewIntegrityError("SUMMARY_CORRUPT", "summary row references unknown tenant")
}

type fakeOutbox struct{}

func (fakeOutbox) GetDeadLetterEntries(context.Context, event.OutboxFilter) (*shared.Paginated[event.OutboxEntryDTO], error) {
	page := shared.NewPaginated([]event.OutboxEntryDTO{{ID: uuid.New(), Status: "DEAD"}}, 1, 1, 20)
	return &page, nil
}

func (fakeOutbox) GetEntry(context.Context, uuid.UUID) (*event.OutboxEntryDTO, error) {
	return nil, shared.ErrNotFound
}

func (fakeOutbox) RetryDeadEntry(context.Context, uuid.UUID) (*event.OutboxEntryDTO, error) {
	return nil, shared.NewValidationError("NOT_DEAD", "only dead entries can be retried")
}

func (fakeOutbox) RetryAllDeadEntries(context.Context) (int64, error) { return 3, nil }

func (fakeOutbox) GetStats(context.Context) (*event.OutboxStatsDTO, error) {
	return &event.OutboxStatsDTO{Pending: 2, Total: 2}, nil
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Correlation())
	return r
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func do(r *gin.Engine, c call) (*httptest.ResponseRecorder, dto.Response) {
	var req *http.Request
	if c.body != "" {
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func tenantHeaders(tenant uuid.UUID) map[string]string {
	return map[string]string{
		middleware.HeaderTenantID:       tenant.String(),
		middleware.HeaderIdempotencyKey: "key-1",
	}
}

const billBody = `{
	"vendorRef": "INV-7",
	"billDate": "2024-03-05",
	"payableAccountId": "6f9619ff-8b86-d011-b42d-00cf4fc964ff",
	"lines": [
		{"kind": "INVENTORY", "itemId": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "locationId": "9b2f2c1e-3a7d-4b0f-8f59-2f1c7a8d3e11",
		 "quantity": "10", "unitCost": "12", "accountId": "0e3f5a4b-9c7d-4e21-8a3b-5c6d7e8f9a0b"}
	]
}`

func TestBillHandler_Post(t *testing.T) {
	bills := &fakeBills{}
	h := NewBillHandler(bills, bills, bills)
	r := newEngine()
	r.POST("/bills", middleware.Tenant(), h.Post)
	tenant, actor := uuid.New(), uuid.New()

	t.Run("builds the command context from headers", func(t *testing.T) {
		headers := tenantHeaders(tenant)
		headers[middleware.HeaderUserID] = actor.String()
		headers[middleware.HeaderCorrelationID] = "corr-42"

		w, resp := do(r, call{http.MethodPost, "/bills", billBody, headers})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.True(t, resp.Success)
		assert.Empty(t, w.Header().Get(middleware.HeaderReplayed))

		assert.Equal(t, tenant, bills.cc.TenantID)
		assert.Equal(t, actor, bills.cc.ActorID)
		assert.Equal(t, "key-1", bills.cc.ClientKey)
		assert.Equal(t, "corr-42", bills.cc.CorrelationID)

		require.Len(t, bills.post.Lines, 1)
		assert.Equal(t, "2024-03-05", bills.post.BillDate.Format(time.DateOnly))
		assert.Equal(t, "10", bills.post.Lines[0].Quantity.String())
		assert.Equal(t, "12", bills.post.Lines[0].UnitCost.String())
	})

	t.Run("replay is flagged", func(t *testing.T) {
		bills.replay = true
		defer func() { bills.replay = false }()

		w, _ := do(r, call{http.MethodPost, "/bills", billBody, tenantHeaders(tenant)})
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "true", w.Header().Get(middleware.HeaderReplayed))
	})

	t.Run("inventory line without item fails binding", func(t *testing.T) {
		body := `{"billDate":"2024-03-05","payableAccountId":"6f9619ff-8b86-d011-b42d-00cf4fc964ff",
			"lines":[{"kind":"INVENTORY","accountId":"0e3f5a4b-9c7d-4e21-8a3b-5c6d7e8f9a0b"}]}`
		w, resp := do(r, call{http.MethodPost, "/bills", body, tenantHeaders(tenant)})
		require.Equal(t, http.StatusBadRequest, w.Code)
		fields := map[string]bool{}
		for _, f := range resp.Error.Fields {
			fields[f.Field] = true
		}
		assert.True(t, fields["lines[0].itemId"])
		assert.True(t, fields["lines[0].quantity"])
	})
}

func TestBaseHandler_ErrorKinds(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"validation", shared.NewValidationError("AMOUNT_EXCEEDS_BALANCE", "payment exceeds outstanding balance"), http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_BALANCE", "payment exceeds outstanding balance"},
		{"conflict", shared.ErrIdempotencyInProgress, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", ""},
		{"not found", shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND", ""},
		{"integrity", shared.NewIntegrityError("LEDGER_UNBALANCED", "debits 10 credits 9"), http.StatusInternalServerError, "LEDGER_UNBALANCED", "An unexpected error occurred"},
		{"unavailable", shared.NewDomainError(shared.KindUnavailable, "BUS_DOWN", "bus unavailable"), http.StatusServiceUnavailable, "BUS_DOWN", ""},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, dto.ErrCodeTimeout, ""},
		{"plain error", errors.New("pq: connection refused"), http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bills := &fakeBills{err: tt.err}
			r := newEngine()
			r.POST("/bills/:id/payments", middleware.Tenant(), NewBillHandler(bills, bills, bills).Pay)

			body := `{"amount":"50","paymentDate":"2024-03-06","cashAccountId":"0e3f5a4b-9c7d-4e21-8a3b-5c6d7e8f9a0b"}`
			w, resp := do(r, call{http.MethodPost, "/bills/" + uuid.NewString() + "/payments", body, tenantHeaders(uuid.New())})
			require.Equal(t, tt.wantStatus, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, resp.Error.Message)
			}
		})
	}
}

func TestBillHandler_PayAndGet(t *testing.T) {
	bills := &fakeBills{}
	h := NewBillHandler(bills, bills, bills)
	r := newEngine()
	r.Use(middleware.Tenant())
	r.POST("/bills/:id/payments", h.Pay)
	r.GET("/bills/:id", h.Get)
	billID := uuid.New()

	w, _ := do(r, call{http.MethodPost, "/bills/not-a-uuid/payments", `{}`, tenantHeaders(uuid.New())})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := `{"amount":"50.25","paymentDate":"2024-03-06","cashAccountId":"0e3f5a4b-9c7d-4e21-8a3b-5c6d7e8f9a0b"}`
	w, _ = do(r, call{http.MethodPost, "/bills/" + billID.String() + "/payments", body, tenantHeaders(uuid.New())})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, billID, bills.pay.BillID)
	assert.Equal(t, "50.25", bills.pay.Amount.String())

	w, resp := do(r, call{http.MethodGet, "/bills/" + billID.String(), "", tenantHeaders(uuid.New())})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, billID, bills.queried)
	assert.True(t, resp.Success)
}

func TestJournalHandler(t *testing.T) {
	journals := &fakeJournals{}
	h := NewJournalHandler(journals, journals)
	r := newEngine()
	r.Use(middleware.Tenant())
	r.GET("/journal-entries", h.List)
	r.GET("/journal-entries/:id", h.Get)
	r.POST("/journal-entries/:id/reverse", h.Reverse)
	tenant := uuid.New()

	t.Run("reverse without body keeps the original date", func(t *testing.T) {
		id := uuid.New()
		w, _ := do(r, call{http.MethodPost, "/journal-entries/" + id.String() + "/reverse", "", tenantHeaders(tenant)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, id, journals.reverse.EntryID)
		assert.True(t, journals.reverse.Date.IsZero())
	})

	t.Run("reverse with date and reason", func(t *testing.T) {
		id := uuid.New()
		w, _ := do(r, call{http.MethodPost, "/journal-entries/" + id.String() + "/reverse",
			`{"date":"2024-04-01","reason":"duplicate"}`, tenantHeaders(tenant)})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "2024-04-01", journals.reverse.Date.Format(time.DateOnly))
		assert.Equal(t, "duplicate", journals.reverse.Reason)
	})

	t.Run("list carries filters and page meta", func(t *testing.T) {
		account := uuid.New()
		w, resp := do(r, call{http.MethodGet, "/journal-entries?page=2&page_size=2&from=2024-03-01&source_type=bill&account_id=" + account.String(), "", tenantHeaders(tenant)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(7), resp.Meta.Total)
		assert.Equal(t, 4, resp.Meta.TotalPages)
		assert.Equal(t, "bill", journals.filter.SourceType)
		require.NotNil(t, journals.filter.AccountID)
		assert.Equal(t, account, *journals.filter.AccountID)
		require.NotNil(t, journals.filter.From)
		assert.Nil(t, journals.filter.To)
	})

	t.Run("list rejects bad sort order", func(t *testing.T) {
		w, _ := do(r, call{http.MethodGet, "/journal-entries?sort_order=sideways", "", tenantHeaders(tenant)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing entry", func(t *testing.T) {
		w, _ := do(r, call{http.MethodGet, "/journal-entries/" + uuid.NewString(), "", tenantHeaders(tenant)})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestStockHandler(t *testing.T) {
	stock := &fakeStock{}
	h := NewStockHandler(stock, stock)
	r := newEngine()
	r.Use(middleware.Tenant())
	r.POST("/stock/issues", h.Issue)
	r.POST("/stock/recalculate", h.Recalculate)
	r.GET("/stock/levels", h.GetLevel)
	tenant := uuid.New()

	t.Run("issue", func(t *testing.T) {
		body := `{"locationId":"9b2f2c1e-3a7d-4b0f-8f59-2f1c7a8d3e11","itemId":"7c9e6679-7425-40de-944b-e07fc1f90ae7",
			"quantity":"3","moveDate":"2024-03-04","cogsAccountId":"0e3f5a4b-9c7d-4e21-8a3b-5c6d7e8f9a0b",
			"inventoryAccountId":"6f9619ff-8b86-d011-b42d-00cf4fc964ff"}`
		w, _ := do(r, call{http.MethodPost, "/stock/issues", body, tenantHeaders(tenant)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "3", stock.issue.Quantity.String())
		assert.Empty(t, stock.issue.Kind, "kind defaults in the service")
	})

	t.Run("issue with zero quantity fails binding", func(t *testing.T) {
		body := `{"locationId":"9b2f2c1e-3a7d-4b0f-8f59-2f1c7a8d3e11","itemId":"7c9e6679-7425-40de-944b-e07fc1f90ae7",
			"quantity":"0","moveDate":"2024-03-04","cogsAccountId":"0e3f5a4b-9c7d-4e21-8a3b-5c6d7e8f9a0b",
			"inventoryAccountId":"6f9619ff-8b86-d011-b42d-00cf4fc964ff"}`
		w, _ := do(r, call{http.MethodPost, "/stock/issues", body, tenantHeaders(tenant)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("recalculate replay keeps 200", func(t *testing.T) {
		w, _ := do(r, call{http.MethodPost, "/stock/recalculate", `{"fromDate":"2024-03-01"}`, tenantHeaders(tenant)})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "true", w.Header().Get(middleware.HeaderReplayed))
	})

	t.Run("level", func(t *testing.T) {
		loc, item := uuid.New(), uuid.New()
		w, _ := do(r, call{http.MethodGet, "/stock/levels?location_id=" + loc.String() + "&item_id=" + item.String(), "", tenantHeaders(tenant)})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, inventory.StockKey{TenantID: tenant, LocationID: loc, ItemID: item}, stock.key)

		w, _ = do(r, call{http.MethodGet, "/stock/levels?location_id=" + loc.String(), "", tenantHeaders(tenant)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReportHandler(t *testing.T) {
	reports := &fakeReports{}
	h := NewReportHandler(reports)
	h.now = func() time.Time { return time.Date(2024, 5, 31, 18, 0, 0, 0, time.UTC) }
	r := newEngine()
	r.Use(middleware.Tenant())
	r.GET("/reports/trial-balance", h.TrialBalance)
	r.GET("/reports/daily-summary", h.DailySummary)
	tenant := uuid.New()

	w, _ := do(r, call{http.MethodGet, "/reports/trial-balance", "", tenantHeaders(tenant)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-05-31", reports.asOf.Format(time.DateOnly), "defaults to today")

	w, _ = do(r, call{http.MethodGet, "/reports/trial-balance?as_of=2024-01-31", "", tenantHeaders(tenant)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-01-31", reports.asOf.Format(time.DateOnly))

	w, resp := do(r, call{http.MethodGet, "/reports/daily-summary?date=2024-01-31", "", tenantHeaders(tenant)})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SUMMARY_CORRUPT", resp.Error.Code)
	assert.Nil(t, resp.Error.Details)
}

func TestOutboxHandler(t *testing.T) {
	h := NewOutboxHandler(fakeOutbox{})
	r := newEngine()
	r.GET("/system/outbox/stats", h.GetStats)
	r.GET("/system/outbox/dead", h.GetDeadLetterEntries)
	r.POST("/system/outbox/dead/retry-all", h.RetryAllDeadEntries)
	r.GET("/system/outbox/:id", h.GetEntry)
	r.POST("/system/outbox/:id/retry", h.RetryDeadEntry)

	w, resp := do(r, call{method: http.MethodGet, path: "/system/outbox/dead?page=1&page_size=20"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), resp.Meta.Total)

	w, _ = do(r, call{method: http.MethodGet, path: "/system/outbox/dead?page_size=1000"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, call{method: http.MethodPost, path: "/system/outbox/dead/retry-all"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"count":3}}`, w.Body.String())

	w, _ = do(r, call{method: http.MethodGet, path: "/system/outbox/" + uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(r, call{method: http.MethodPost, path: "/system/outbox/" + uuid.NewString() + "/retry"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = do(r, call{method: http.MethodGet, path: "/system/outbox/stats"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSystemHandler_Health(t *testing.T) {
	healthy := NewSystemHandler("ledgercore", "test", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	degraded := NewSystemHandler("ledgercore", "test", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	r := gin.New()
	r.GET("/ok", healthy.Health)
	r.GET("/degraded", degraded.Health)

	w, _ := do(r, call{method: http.MethodGet, path: "/ok"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(r, call{method: http.MethodGet, path: "/degraded"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Data HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Data.Status)
	assert.Equal(t, "ok", body.Data.Checks["database"])
	assert.Contains(t, body.Data.Checks["redis"], "connection refused")
}
