package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// TracerProvider overrides the global provider, mainly for tests
	TracerProvider trace.TracerProvider
}

// Tracing starts a server span per request through otelgin
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	var opts []otelgin.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanEnricher copies ids from the gin context onto the active span after the
// rest of the chain ran. Place it right after Tracing.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if id := GetCorrelationID(c); id != "" {
			span.SetAttributes(attribute.String("correlation_id", id))
		}
		if id := GetTenantID(c); id != uuid.Nil {
			span.SetAttributes(attribute.String("tenant_id", id.String()))
		}
		if id := GetUserID(c); id != uuid.Nil {
			span.SetAttributes(attribute.String("user_id", id.String()))
		}
		if replayed := c.Writer.Header().Get(HeaderReplayed); replayed != "" {
			span.SetAttributes(attribute.Bool("idempotent.replayed", true))
		}
	}
}

// SpanErrorMarker marks the span as failed for 5xx responses. Client errors
// are expected outcomes of validation and idempotency conflicts.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
