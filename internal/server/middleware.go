package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/zenbill/zenbill/internal/tenantctx"
)

const tenantHeader = "X-Tenant-ID"

// TenantMiddleware resolves the active tenant from the request header and
// stores it in the request context. Requests without a valid tenant never
// reach a handler.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(tenantHeader))
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: errorPayload{
				Type:    "unauthorized",
				Message: "missing or invalid tenant",
			}})
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
