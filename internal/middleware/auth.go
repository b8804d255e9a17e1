package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

const (
	ContextActorID = "actor_id"
	ContextRole    = "actor_role"
	HeaderXActorID = "X-Actor-ID"
	anonymousActor = "anonymous"
	bearerScheme   = "Bearer"
)

type AuthMiddleware struct {
	jwt      auth.JWTService
	disabled bool
}

// NewAuthMiddleware validates staff bearer tokens. With disabled set every
// request passes and the actor comes from the X-Actor-ID header.
func NewAuthMiddleware(jwt auth.JWTService, disabled bool) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, disabled: disabled}
}

// Authenticate verifies the JWT and stores the staff subject as the actor.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.disabled {
			actor := strings.TrimSpace(c.GetHeader(HeaderXActorID))
			if actor == "" {
				actor = anonymousActor
			}
			c.Set(ContextActorID, actor)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != bearerScheme {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextActorID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
