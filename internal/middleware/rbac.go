package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
	"github.com/sekolahku/sis-core-api/pkg/response"
)

// SelfAccess is the RBAC marker admitting requests whose :id path parameter
// matches the authenticated user, regardless of role.
const SelfAccess = "SELF"

// RBAC gates a route on the caller's role. Must run after JWT.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.Role]struct{}, len(allowed))
	allowSelf := false
	for _, entry := range allowed {
		if entry == SelfAccess {
			allowSelf = true
			continue
		}
		roles[models.Role(entry)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := roles[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf && c.Param("id") != "" && c.Param("id") == claims.UserID {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is RBAC with typed roles and no self escape hatch.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
