// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civilaviation/fop-backend/internal/i18n"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// Roles carried in the identity token.
const (
	RoleOperator = "operator"
	RoleOfficer  = "officer"
	RoleFinance  = "finance"
	RoleDirector = "director"
	RoleAdmin    = "admin"
)

// TenantHeader names the tenant on unauthenticated requests.
const TenantHeader = "X-Tenant-ID"

// AuthRequired validates the bearer token and puts the actor, role and
// tenant in the context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthTokenExpired))
			c.Abort()
			return
		}

		c.Set("actor", claims.Subject)
		c.Set("role", claims.Role)
		if claims.TenantID != "" {
			c.Set("tenant_id", claims.TenantID)
		}
		c.Next()
	}
}

// TenantFromHeader fills the tenant from X-Tenant-ID when no token did.
func TenantFromHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetTenantFromContext(c); !ok {
			if tenant := strings.TrimSpace(c.GetHeader(TenantHeader)); tenant != "" {
				c.Set("tenant_id", tenant)
			}
		}
		c.Next()
	}
}

// TenantRequired rejects requests without a tenant.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetTenantFromContext(c); !ok {
			lang := utils.GetLangFromContext(c)
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAuthTenantMissing), nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole admits callers holding one of roles. Admins pass every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := utils.GetRoleFromContext(c)
		if role == RoleAdmin {
			c.Next()
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, "")
		c.Abort()
	}
}
