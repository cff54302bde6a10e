// Package middleware wires request-scoped concerns (identity, RBAC,
// auditing, metrics) between the router and the handlers.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edukita/classtrack-api/internal/authz"
	"github.com/edukita/classtrack-api/internal/models"
	"github.com/edukita/classtrack-api/internal/service"
	appErrors "github.com/edukita/classtrack-api/pkg/errors"
	"github.com/edukita/classtrack-api/pkg/response"
)

const (
	// ContextUserKey holds the verified token claims.
	ContextUserKey = "currentUser"
	// ContextActorKey holds the authz.Actor resolved from the profile store.
	ContextActorKey = "currentActor"
)

type roleResolver interface {
	RoleOf(ctx context.Context, id string) (models.Role, error)
}

// Identity verifies the bearer token and resolves the caller's role from
// the profile store. Tokens carry identity only; the role is looked up per
// request so a role change takes effect without reissuing tokens. Callers
// without a profile row pass through with an empty role, which every
// policy except registration rejects.
func Identity(tokens *service.TokenService, roles roleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "authorization header must use the Bearer scheme"))
			c.Abort()
			return
		}

		claims, err := tokens.Verify(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		role, err := roles.RoleOf(c.Request.Context(), claims.Subject)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve caller role"))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextActorKey, authz.Actor{ID: claims.Subject, Role: role})
		c.Next()
	}
}

// CurrentActor returns the actor stored by Identity.
func CurrentActor(c *gin.Context) (authz.Actor, bool) {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return authz.Actor{}, false
	}
	actor, ok := value.(authz.Actor)
	return actor, ok
}

// CurrentClaims returns the token claims stored by Identity.
func CurrentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
