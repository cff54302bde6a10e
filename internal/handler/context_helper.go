package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/middleware"
	"github.com/edukita/classtrack-api/internal/models"
)

func actorFromContext(c *gin.Context) (authz.Actor, bool) {
	return middleware.CurrentActor(c)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

func metaFromRequest(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
