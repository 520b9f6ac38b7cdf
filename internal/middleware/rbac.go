package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
	"github.com/noah-isme/registry-api/pkg/response"
)

// RequireRoles admits only callers holding one of roles. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin admits organization wide administrators.
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
}
