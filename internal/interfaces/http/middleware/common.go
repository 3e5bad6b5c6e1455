// Package middleware provides the gin middleware of the ledger HTTP API.
package middleware

import (
	"context"
	"time"

	"github.com/erp/ledgercore/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header names read and written by the API
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderCorrelationID  = "X-Correlation-ID"
	HeaderTenantID       = "X-Tenant-ID"
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// Gin context keys
const (
	RequestIDKey     = "request_id"
	CorrelationIDKey = "correlation_id"
	TenantIDKey      = "tenant_id"
	UserIDKey        = "user_id"
)

// MaxHeaderIDLength bounds caller supplied request and correlation ids
const MaxHeaderIDLength = 128

// RequestID assigns a request id, echoes it in the response and stores it in
// the request context for the logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := truncate(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// Correlation propagates X-Correlation-ID, defaulting to the request id.
// Run it after RequestID.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := truncate(c.GetHeader(HeaderCorrelationID))
		if correlationID == "" {
			correlationID = GetRequestID(c)
		}
		c.Set(CorrelationIDKey, correlationID)
		c.Writer.Header().Set(HeaderCorrelationID, correlationID)
		c.Request = c.Request.WithContext(logger.WithCorrelationID(c.Request.Context(), correlationID))
		c.Next()
	}
}

// Timeout bounds the request context. Handlers and the database driver
// observe the deadline through ctx.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRequestID returns the request id set by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// GetCorrelationID returns the correlation id set by Correlation
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}

func truncate(s string) string {
	if len(s) > MaxHeaderIDLength {
		return s[:MaxHeaderIDLength]
	}
	return s
}
