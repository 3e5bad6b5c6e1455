package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBInstrumentationConfig selects what the GORM plugin records
type DBInstrumentationConfig struct {
	TraceEnabled  bool // install otelgorm spans
	LogFullSQL    bool // keep bind variables in span statements
	SlowThreshold time.Duration
	PoolInterval  time.Duration
}

type queryStartKey struct{}

// DBInstrumentation is a GORM plugin that records query count, latency and
// slow queries, and annotates the active span with rows affected and a slow
// query event
type DBInstrumentation struct {
	cfg    DBInstrumentationConfig
	logger *zap.Logger

	queryTotal    *Counter
	queryDuration *Histogram
	slowTotal     *Counter
	poolConns     *Gauge

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDBInstrumentation creates the instruments on meter
func NewDBInstrumentation(meter metric.Meter, cfg DBInstrumentationConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if meter == nil {
		return nil, &MetricsError{Op: "NewDBInstrumentation", Err: "meter cannot be nil"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.PoolInterval <= 0 {
		cfg.PoolInterval = 15 * time.Second
	}

	d := &DBInstrumentation{cfg: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if d.slowTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the threshold", "{query}"); err != nil {
		return nil, err
	}
	if d.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements gorm.Plugin
func (d *DBInstrumentation) Name() string { return "ledger_db_instrumentation" }

// Initialize implements gorm.Plugin
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	if d.cfg.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(db.Dialector.Name())}
		if !d.cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	cb := db.Callback()
	hooks := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
		op     string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "INSERT"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "SELECT"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "UPDATE"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "DELETE"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, ""},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, ""},
	}
	for _, h := range hooks {
		op := h.op
		if err := h.before("ledger_db:before_"+h.name, d.before); err != nil {
			return err
		}
		if err := h.after("ledger_db:after_"+h.name, func(db *gorm.DB) { d.after(db, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (d *DBInstrumentation) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (d *DBInstrumentation) after(db *gorm.DB, op string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if op == "" {
		op = operationOf(db.Statement.SQL.String())
	}
	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}

	var elapsed time.Duration
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}
	slow := elapsed > d.cfg.SlowThreshold

	d.queryTotal.Inc(ctx, AttrDBOperation.String(op))
	d.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(op))
	if slow {
		d.slowTotal.Inc(ctx, AttrDBTable.String(table))
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		attribute.String("db.sql.table", table),
	)
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}
	if slow {
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", d.cfg.SlowThreshold.Milliseconds()),
		))
	}
}

func operationOf(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

// StartPoolStats samples the connection pool until Stop
func (d *DBInstrumentation) StartPoolStats(sqlDB *sql.DB) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PoolInterval)
		defer ticker.Stop()
		for {
			d.recordPool(sqlDB)
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *DBInstrumentation) recordPool(sqlDB *sql.DB) {
	ctx := context.Background()
	stats := sqlDB.Stats()
	d.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	d.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	d.poolConns.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop ends pool sampling. Safe to call more than once.
func (d *DBInstrumentation) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
}
