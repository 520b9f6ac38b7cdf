package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registry-api/internal/middleware"
	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
	"github.com/noah-isme/registry-api/pkg/response"
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

// actorFromContext resolves the caller or writes UNAUTHORIZED and reports false.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return models.ActorFromClaims(claims), true
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
