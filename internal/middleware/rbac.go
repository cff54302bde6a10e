package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/edukita/classtrack-api/internal/models"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
	"github.com/edukita/classtrack-api/pkg/response"
)

// RequireRegistered blocks callers that verified a token but have no
// profile row yet. Registration and health endpoints skip this gate.
func RequireRegistered() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if actor.Role == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "registration required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles restricts a route to the listed roles. The policy engine
// remains authoritative for per-resource decisions; this gate only rejects
// requests that no policy could ever allow.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
