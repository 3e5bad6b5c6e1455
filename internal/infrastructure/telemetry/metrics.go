package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by the ledger, relay, HTTP and pool instruments.
var (
	AttrTenantID  = attribute.Key("tenant_id")
	AttrSource    = attribute.Key("source")
	AttrCommand   = attribute.Key("command")
	AttrEventType = attribute.Key("event_type")
	AttrStatus    = attribute.Key("status")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")

	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")
)

// Bucket boundaries in seconds.
var (
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	DBDurationBuckets   = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

// Counter wraps a monotonically increasing int64 instrument. The zero value
// and a nil *Counter record nothing.
type Counter struct {
	inst metric.Int64Counter
}

// NewCounter registers an int64 counter on meter
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	inst, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", name, err)
	}
	return &Counter{inst: inst}, nil
}

func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil || c.inst == nil {
		return
	}
	c.inst.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// HistogramOpts describes a float64 histogram. Empty Boundaries keep the
// SDK's default buckets.
type HistogramOpts struct {
	Name        string
	Description string
	Unit        string
	Boundaries  []float64
}

// Histogram wraps a float64 distribution instrument; nil records nothing
type Histogram struct {
	inst metric.Float64Histogram
}

// NewHistogram registers a float64 histogram on meter
func NewHistogram(meter metric.Meter, opts HistogramOpts) (*Histogram, error) {
	options := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(opts.Boundaries) > 0 {
		options = append(options, metric.WithExplicitBucketBoundaries(opts.Boundaries...))
	}
	inst, err := meter.Float64Histogram(opts.Name, options...)
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", opts.Name, err)
	}
	return &Histogram{inst: inst}, nil
}

func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil || h.inst == nil {
		return
	}
	h.inst.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Gauge wraps a synchronous int64 gauge; nil records nothing
type Gauge struct {
	inst metric.Int64Gauge
}

// NewGauge registers an int64 gauge on meter
func NewGauge(meter metric.Meter, name, description, unit string) (*Gauge, error) {
	inst, err := meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", name, err)
	}
	return &Gauge{inst: inst}, nil
}

func (g *Gauge) Record(ctx context.Context, v int64, attrs ...attribute.KeyValue) {
	if g == nil || g.inst == nil {
		return
	}
	g.inst.Record(ctx, v, metric.WithAttributes(attrs...))
}
