package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/petlog/internal/observability/context"
)

// Headers set by the upstream auth proxy after it has verified the caller.
const (
	HeaderTenant = "X-Tenant-ID"
	HeaderRole   = "X-User-Role"

	contextTenantIDKey = "tenant_id"
	contextRoleKey     = "role"
)

// TenantContext requires a tenant header and carries it into the request
// context for logs, traces and handlers.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		tenantID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || tenantID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextTenantIDKey, tenantID)
		c.Request = c.Request.WithContext(obscontext.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

// RoleContext reads the caller role. A missing role is unauthenticated.
func RoleContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderRole)))
		if role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextRoleKey, role)
		c.Request = c.Request.WithContext(obscontext.WithRole(c.Request.Context(), role))
		c.Next()
	}
}

func tenantIDFromContext(c *gin.Context) int64 {
	return c.GetInt64(contextTenantIDKey)
}

func roleFromContext(c *gin.Context) string {
	return c.GetString(contextRoleKey)
}
