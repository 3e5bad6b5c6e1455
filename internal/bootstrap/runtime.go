// Package bootstrap wires the infrastructure shared by the API server and
// the event worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/erp/ledgercore/internal/application/command"
	"github.com/erp/ledgercore/internal/application/document"
	appinventory "github.com/erp/ledgercore/internal/application/inventory"
	appledger "github.com/erp/ledgercore/internal/application/ledger"
	"github.com/erp/ledgercore/internal/application/projection"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/cache"
	"github.com/erp/ledgercore/internal/infrastructure/config"
	"github.com/erp/ledgercore/internal/infrastructure/event"
	"github.com/erp/ledgercore/internal/infrastructure/lock"
	"github.com/erp/ledgercore/internal/infrastructure/logger"
	"github.com/erp/ledgercore/internal/infrastructure/persistence"
	"github.com/erp/ledgercore/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Runtime owns the process-wide connections. Close releases them in
// reverse order of Open.
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Providers
	DB        *persistence.Database
	// Redis is nil when the server could not be reached
	Redis   redis.UniversalClient
	Outbox  *event.GormOutboxRepository
	Scope   *persistence.GormTransactionScope
	Metrics *telemetry.LedgerMetrics

	dbInstrumentation *telemetry.DBInstrumentation
	pubsub            *pubsub.Client
}

// Open loads configuration and connects telemetry, Postgres and Redis
func Open(ctx context.Context, service string) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	base, err := logger.New(cfg.Log, service)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	rt := &Runtime{Config: cfg, Logger: base}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = service
	}
	rt.Telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, base)
	if err != nil {
		return nil, err
	}
	rt.Logger = rt.Telemetry.BridgeLogger(base)

	if err := rt.openDatabase(); err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}
	rt.openRedis(ctx)

	serializer := event.NewEnvelopeSerializer(service)
	event.RegisterAllEvents(serializer)
	rt.Outbox = event.NewGormOutboxRepository(rt.DB.DB)
	rt.Scope = persistence.NewGormTransactionScope(rt.DB.DB, event.NewOutboxWriter(serializer, cfg.Outbox.MaxAttempts))

	rt.Metrics, err = telemetry.NewLedgerMetrics(rt.Telemetry.Meter(service), rt.Logger)
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}
	return rt, nil
}

func (rt *Runtime) openDatabase() error {
	cfg := rt.Config
	db, err := persistence.NewDatabase(&cfg.Database, rt.Logger.Named("gorm"))
	if err != nil {
		return err
	}
	rt.DB = db

	instr, err := telemetry.NewDBInstrumentation(rt.Telemetry.Meter("ledgercore/db"), telemetry.DBInstrumentationConfig{
		TraceEnabled:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:    cfg.Telemetry.DBLogFullSQL,
		SlowThreshold: cfg.Database.SlowThreshold,
	}, rt.Logger)
	if err != nil {
		return err
	}
	if err := db.DB.Use(instr); err != nil {
		return fmt.Errorf("install database instrumentation: %w", err)
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	instr.StartPoolStats(sqlDB)
	rt.dbInstrumentation = instr

	rt.Logger.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)
	return nil
}

// openRedis leaves rt.Redis nil on failure; the locker and the
// processed-event store fall back to their in-process variants.
func (rt *Runtime) openRedis(ctx context.Context) {
	client, err := cache.NewRedisClient(ctx, rt.Config.Redis)
	if err != nil {
		rt.Logger.Warn("Redis unavailable", zap.String("addr", rt.Config.Redis.Addr()), zap.Error(err))
		return
	}
	rt.Redis = client
}

// Locker builds the configured resource locker
func (rt *Runtime) Locker() (shared.Locker, error) {
	return lock.NewLocker(rt.Config.Lock, rt.Redis, rt.Logger.Named("lock"))
}

// DocumentDeps assembles the collaborators of the document services.
// dispatcher may be nil.
func (rt *Runtime) DocumentDeps(dispatcher document.Dispatcher) (document.Deps, error) {
	locker, err := rt.Locker()
	if err != nil {
		return document.Deps{}, err
	}
	cfg := rt.Config
	executor := command.NewExecutor(rt.Scope, command.Policy{
		InProgressTimeout: cfg.Idempotency.InProgressTimeout,
		RetryInProgress:   cfg.Idempotency.RetryInProgress,
		MaxWaitAttempts:   cfg.Idempotency.MaxWaitAttempts,
	}, rt.Logger.Named("executor"))
	posting := appledger.NewPostingEngine(rt.Logger)

	deps := document.Deps{
		Executor:   executor,
		Locker:     locker,
		LockTTL:    cfg.Lock.TTL,
		Posting:    posting,
		WAC:        appinventory.NewWACEngine(posting, rt.Logger),
		Dispatcher: dispatcher,
		RecalcMode: document.ParseRecalcMode(cfg.Recalc.Mode),
		Metrics:    rt.Metrics,
		Logger:     rt.Logger,
	}
	return deps, nil
}

// EventHandlers returns the consumers of published events: the daily
// summary projection and forward recalculation, the latter deduplicated
// through the processed-event store.
func (rt *Runtime) EventHandlers(deps document.Deps) []shared.EventHandler {
	store := cache.NewProcessedEventStore(rt.Redis, rt.Logger)
	recalc := event.NewIdempotentHandler(
		document.NewRecalcHandler(deps),
		store,
		rt.Logger.Named("recalc"),
		event.WithProcessedEventTTL(rt.Config.Idempotency.ProcessedEventTTL),
		event.WithConsumerMetrics(rt.Metrics),
	)
	return []shared.EventHandler{
		projection.NewDailySummaryHandler(rt.Scope, rt.Logger.Named("projection")),
		recalc,
	}
}

// Topic connects to Pub/Sub and makes sure the configured topic exists
func (rt *Runtime) Topic(ctx context.Context) (*pubsub.Topic, error) {
	if rt.pubsub == nil {
		client, err := event.NewPubSubClient(ctx, rt.Config.PubSub)
		if err != nil {
			return nil, err
		}
		rt.pubsub = client
	}
	return event.EnsureTopic(ctx, rt.pubsub, rt.Config.PubSub.Topic)
}

// Subscription makes sure the configured subscription exists on topic
func (rt *Runtime) Subscription(ctx context.Context, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	return event.EnsureSubscription(ctx, rt.pubsub, rt.Config.PubSub.Subscription, topic, rt.Config.PubSub.Ordering)
}

// HealthChecks probes Postgres and, when connected, Redis
func (rt *Runtime) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": rt.DB.Ping,
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases every connection that was opened
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Metrics != nil {
		rt.Metrics.Stop()
	}
	if rt.pubsub != nil {
		errs = append(errs, rt.pubsub.Close())
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.dbInstrumentation != nil {
		rt.dbInstrumentation.Stop()
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	errs = append(errs, rt.Telemetry.Shutdown(ctx))
	_ = rt.Logger.Sync()
	return errors.Join(errs...)
}
