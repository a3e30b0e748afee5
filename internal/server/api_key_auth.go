package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/sentinel/internal/apikey/domain"
	obscontext "github.com/smallbiznis/sentinel/internal/observability/context"
)

const (
	contextIdentityKey = "api_key_identity"
	contextKeyIDKey    = "api_key_id"
)

// APIKeyRequired authenticates requests with a bearer API key. The
// resolved identity rides in the gin context for the scope and rate
// limit gates behind it.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, apikeydomain.ErrInvalidKey) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "api_key", identity.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextIdentityKey, identity)
		c.Set(contextKeyIDKey, identity.KeyID)
		c.Next()
	}
}

// AdminScopeRequired gates a route group on the admin scope. It must run
// after APIKeyRequired.
func (s *Server) AdminScopeRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !identity.HasScope(apikeydomain.ScopeAdmin) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func identityFromContext(c *gin.Context) (*apikeydomain.Identity, bool) {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil, false
	}
	identity, ok := value.(*apikeydomain.Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
