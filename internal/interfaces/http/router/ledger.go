package router

import (
	"time"

	"github.com/erp/ledgercore/internal/infrastructure/logger"
	"github.com/erp/ledgercore/internal/interfaces/http/handler"
	"github.com/erp/ledgercore/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handlers are the endpoint handlers of the ledger API. A nil handler
// leaves its routes unregistered.
type Handlers struct {
	Accounts *handler.AccountHandler
	Bills    *handler.BillHandler
	Stock    *handler.StockHandler
	Journals *handler.JournalHandler
	Reports  *handler.ReportHandler
	Outbox   *handler.OutboxHandler
	System   *handler.SystemHandler
}

// EngineConfig configures the gin engine and its middleware chain
type EngineConfig struct {
	ServiceName    string
	Logger         *zap.Logger
	TracingEnabled bool
	TracerProvider trace.TracerProvider
	// Meter records HTTP metrics; nil disables them
	Meter          metric.Meter
	MaxBodySize    int64
	RequestTimeout time.Duration
	TrustedProxies []string
}

// NewEngine builds the gin engine with the middleware chain and every route
// of h registered.
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Correlation(),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName:    cfg.ServiceName,
			Enabled:        cfg.TracingEnabled,
			TracerProvider: cfg.TracerProvider,
		}),
		middleware.SpanEnricher(),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(cfg.Meter, log),
		middleware.BodyLimit(cfg.MaxBodySize),
		middleware.Timeout(cfg.RequestTimeout),
	)

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	tenant := middleware.Tenant()

	if h.Accounts != nil {
		r.Register(NewDomainGroup("accounts", "/accounts").Use(tenant).
			GET("", h.Accounts.List).
			POST("", h.Accounts.Create))
	}
	if h.Bills != nil {
		r.Register(NewDomainGroup("bills", "/bills").Use(tenant).
			POST("", h.Bills.Post).
			GET("/:id", h.Bills.Get).
			POST("/:id/payments", h.Bills.Pay))
	}
	if h.Stock != nil {
		r.Register(NewDomainGroup("stock", "/stock").Use(tenant).
			POST("/issues", h.Stock.Issue).
			POST("/receipts", h.Stock.Receive).
			POST("/recalculate", h.Stock.Recalculate).
			GET("/moves", h.Stock.ListMoves).
			GET("/levels", h.Stock.GetLevel))
	}
	if h.Journals != nil {
		r.Register(NewDomainGroup("journals", "/journal-entries").Use(tenant).
			GET("", h.Journals.List).
			POST("", h.Journals.Post).
			GET("/:id", h.Journals.Get).
			POST("/:id/reverse", h.Journals.Reverse))
	}
	if h.Reports != nil {
		r.Register(NewDomainGroup("reports", "/reports").Use(tenant).
			GET("/trial-balance", h.Reports.TrialBalance).
			GET("/daily-summary", h.Reports.DailySummary))
	}
	if h.Outbox != nil {
		system := NewDomainGroup("system", "/system")
		system.Group("outbox", "/outbox").
			GET("/stats", h.Outbox.GetStats).
			GET("/dead", h.Outbox.GetDeadLetterEntries).
			POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries).
			GET("/:id", h.Outbox.GetEntry).
			POST("/:id/retry", h.Outbox.RetryDeadEntry)
		r.Register(system)
	}

	r.Setup()
	return engine, nil
}
