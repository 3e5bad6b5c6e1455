package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/ledgercore/internal/application/document"
	appevent "github.com/erp/ledgercore/internal/application/event"
	"github.com/erp/ledgercore/internal/application/query"
	"github.com/erp/ledgercore/internal/bootstrap"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/event"
	"github.com/erp/ledgercore/internal/infrastructure/persistence"
	"github.com/erp/ledgercore/internal/interfaces/http/handler"
	"github.com/erp/ledgercore/internal/interfaces/http/router"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const serviceName = "ledgercore-api"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgercore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, serviceName)
	if err != nil {
		return err
	}
	cfg, log := rt.Config, rt.Logger
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()

	log.Info("Starting ledger API",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Message bus: Pub/Sub when configured, otherwise consumers run in-process
	var bus shared.MessageBus
	var memBus *event.InMemoryBus
	if cfg.PubSub.Enabled() {
		topic, err := rt.Topic(ctx)
		if err != nil {
			return err
		}
		psBus := event.NewPubSubBus(topic, cfg.PubSub.Ordering, log.Named("pubsub"))
		defer psBus.Stop()
		bus = psBus
	} else {
		memBus = event.NewInMemoryBus(log.Named("bus"))
		bus = memBus
	}

	relay := event.NewRelay(rt.Outbox, bus, event.RelayConfig{
		BatchSize:       cfg.Outbox.BatchSize,
		ClaimLease:      cfg.Outbox.ClaimLease,
		BaseBackoff:     cfg.Outbox.BaseBackoff,
		MaxBackoff:      cfg.Outbox.MaxBackoff,
		DispatchTimeout: cfg.Outbox.DispatchTimeout,
	}, rt.Metrics, log.Named("relay"))

	deps, err := rt.DocumentDeps(relay)
	if err != nil {
		return err
	}
	if memBus != nil {
		for _, h := range rt.EventHandlers(deps) {
			memBus.Subscribe(h)
		}
	}

	var sweeper *event.Sweeper
	if cfg.Outbox.SweeperEnabled {
		sweeper = event.NewSweeper(relay, rt.Outbox, event.SweeperConfig{
			PollInterval:     cfg.Outbox.PollInterval,
			CleanupEnabled:   cfg.Outbox.CleanupEnabled,
			CleanupRetention: cfg.Outbox.CleanupRetention,
			CleanupInterval:  cfg.Outbox.CleanupInterval,
		}, log.Named("sweeper"))
		if err := sweeper.Start(context.Background()); err != nil {
			return err
		}
	}
	rt.Metrics.StartPeriodicCollection(ctx, rt.Outbox, cfg.Telemetry.MetricsInterval)

	queries := query.NewService(persistence.NewGormReadStore(rt.DB.DB), log)
	bills := document.NewBillService(deps)
	payments := document.NewPaymentService(deps)

	checks := make(map[string]handler.HealthCheck)
	for name, check := range rt.HealthChecks() {
		checks[name] = check
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    serviceName,
		Logger:         log,
		TracingEnabled: rt.Telemetry.Enabled(),
		TracerProvider: otel.GetTracerProvider(),
		Meter:          rt.Telemetry.Meter(serviceName),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, router.Handlers{
		Accounts: handler.NewAccountHandler(document.NewAccountService(deps), queries),
		Bills:    handler.NewBillHandler(bills, payments, queries),
		Stock:    handler.NewStockHandler(document.NewStockService(deps), queries),
		Journals: handler.NewJournalHandler(document.NewJournalService(deps), queries),
		Reports:  handler.NewReportHandler(queries),
		Outbox:   handler.NewOutboxHandler(appevent.NewOutboxService(rt.Outbox, relay, log)),
		System:   handler.NewSystemHandler(serviceName, version, checks),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	// in-flight fast-path dispatches finish before the bus goes away
	if err := relay.Wait(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("relay drain: %w", err))
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("sweeper stop: %w", err))
		}
	}
	if len(errs) == 0 {
		log.Info("Server exited gracefully")
	}
	return errors.Join(errs...)
}
