package middleware

import (
	"net/http"

	"github.com/erp/ledgercore/internal/infrastructure/logger"
	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Tenant requires a UUID X-Tenant-ID header and accepts an optional UUID
// X-User-ID. Authentication happens upstream; the headers are trusted.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderTenantID)
		if raw == "" {
			abortBadRequest(c, "TENANT_REQUIRED", "X-Tenant-ID header is required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			abortBadRequest(c, "INVALID_TENANT", "X-Tenant-ID must be a valid UUID")
			return
		}

		userID := uuid.Nil
		if rawUser := c.GetHeader(HeaderUserID); rawUser != "" {
			if userID, err = uuid.Parse(rawUser); err != nil {
				abortBadRequest(c, "INVALID_USER", "X-User-ID must be a valid UUID")
				return
			}
		}

		c.Set(TenantIDKey, tenantID)
		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tenantID.String()))
		c.Next()
	}
}

// GetTenantID returns the tenant set by Tenant, or uuid.Nil
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(TenantIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetUserID returns the acting user set by Tenant, or uuid.Nil
func GetUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func abortBadRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(code, message, GetRequestID(c)))
}
