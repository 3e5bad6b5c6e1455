package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey        contextKey = "logger"
	requestIDKey     contextKey = "request_id"
	tenantIDKey      contextKey = "tenant_id"
	correlationIDKey contextKey = "correlation_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the attached logger or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request id and attaches a logger carrying it
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("request_id", requestID)))
}

// WithTenantID stores the tenant id and attaches a logger carrying it
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("tenant_id", tenantID)))
}

// WithCorrelationID stores the correlation id and attaches a logger carrying it
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("correlation_id", correlationID)))
}

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// GetRequestID returns the request id or ""
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// GetTenantID returns the tenant id or ""
func GetTenantID(ctx context.Context) string { return stringValue(ctx, tenantIDKey) }

// GetCorrelationID returns the correlation id or ""
func GetCorrelationID(ctx context.Context) string { return stringValue(ctx, correlationIDKey) }

// L returns the context logger with trace_id and span_id added when a span
// is recording. Request, tenant and correlation ids are already on the
// attached logger.
//
//	logger.L(ctx).Info("bill posted", zap.String("bill_id", id))
func L(ctx context.Context) *zap.Logger {
	return WithTrace(ctx, FromContext(ctx))
}

// WithTrace adds trace_id and span_id from ctx to logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
