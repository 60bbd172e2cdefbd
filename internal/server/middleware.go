package server

import (
	"strings"

	"github.com/geocubed/cubehub/internal/auth"
	obscontext "github.com/geocubed/cubehub/internal/observability/context"
	"github.com/gin-gonic/gin"
)

const (
	contextUserKey  = "user"
	contextEmailKey = "email"
	contextTokenKey = "token"

	// ScopeManagePunits authorizes ledger administration.
	ScopeManagePunits = "manage:punits"
)

// AuthRequired resolves the caller from the bearer token and stores identity
// plus the raw token (re-used as the job's callback credential) on the
// context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.verifier.Parse(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, identity.UserName)
		c.Set(contextEmailKey, identity.Email)
		c.Set(contextTokenKey, raw)
		c.Set("identity", identity)

		ctx := obscontext.WithUser(c.Request.Context(), identity.UserName)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func callerUser(c *gin.Context) string  { return c.GetString(contextUserKey) }
func callerEmail(c *gin.Context) string { return c.GetString(contextEmailKey) }
func callerToken(c *gin.Context) string { return c.GetString(contextTokenKey) }

func callerHasScope(c *gin.Context, scope string) bool {
	v, ok := c.Get("identity")
	if !ok {
		return false
	}
	identity, ok := v.(*auth.Identity)
	if !ok {
		return false
	}
	return identity.HasScope(scope)
}
