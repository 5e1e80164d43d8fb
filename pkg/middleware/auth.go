package middleware

import (
	"strings"

	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// Authenticate resolves the bearer token into an identity.Actor. Requests
// without a token continue anonymously; services reject them where needed.
func Authenticate(v *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			_ = c.Error(errutil.Unauthorized("malformed authorization header", nil))
			c.Abort()
			return
		}

		actor, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			_ = c.Error(errutil.Unauthorized("invalid token", err))
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// Actor returns the authenticated caller, or the zero Actor.
func Actor(c *gin.Context) identity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(identity.Actor); ok {
			return a
		}
	}
	return identity.Actor{}
}
