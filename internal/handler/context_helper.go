package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/middleware"
	"github.com/sekolahku/sis-core-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the caller's user id for audit stamping, nil when
// the route is unauthenticated.
func actorFromContext(c *gin.Context) *string {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	return &claims.UserID
}
