package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/logger"
)

// identityKey is the Gin context key the resolved identity is stored under.
const identityKey = "identity"

// Authenticator resolves a bearer token to a caller identity. Credential
// issuance lives outside this service; the production implementation is a
// config-backed token table.
type Authenticator interface {
	Resolve(token string) (domain.Identity, bool)
}

// StaticTokens is an Authenticator backed by a fixed token table.
type StaticTokens map[string]domain.Identity

// Resolve implements Authenticator.
func (t StaticTokens) Resolve(token string) (domain.Identity, bool) {
	id, ok := t[token]
	return id, ok
}

// Auth returns a middleware that requires a valid bearer credential and
// stores the resolved identity on the request.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer credential",
			})
			return
		}

		identity, ok := auth.Resolve(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid credential",
			})
			return
		}

		c.Set(identityKey, identity)

		ctx := logger.WithFields(c.Request.Context(), logger.Fields{
			logger.FieldOwnerID:  identity.OwnerID,
			logger.FieldTenantID: identity.TenantID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetIdentity extracts the resolved identity from the Gin context.
func GetIdentity(c *gin.Context) domain.Identity {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}
