package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatforge/server/internal/module/identity"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// UserIDKey is the context key for user ID.
	UserIDKey = "user_id"
	// IdentityKey is the context key for the full verified identity.
	IdentityKey = "identity"
)

// Auth returns a middleware that verifies bearer tokens through the
// identity provider. On success it sets the user id and the verified
// identity in the context. If optional is true, the middleware will not
// abort on missing/invalid tokens.
func Auth(verifier identity.Verifier, optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			if !optional {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{
						"code":    "UNAUTHORIZED",
						"message": "Authorization header required",
					},
				})
			}
			c.Next()
			return
		}

		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if !optional {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{
						"code":    "INVALID_TOKEN",
						"message": "Invalid or expired token",
					},
				})
			}
			c.Next()
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Set(IdentityKey, id)

		c.Next()
	}
}

// RequireAuth returns a middleware that requires a valid bearer token.
func RequireAuth(verifier identity.Verifier) gin.HandlerFunc {
	return Auth(verifier, false)
}

// OptionalAuth returns a middleware that optionally verifies bearer tokens.
func OptionalAuth(verifier identity.Verifier) gin.HandlerFunc {
	return Auth(verifier, true)
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}

	return ""
}

// GetUserID returns the user ID from context.
// Returns uuid.Nil if not found.
func GetUserID(c *gin.Context) uuid.UUID {
	if val, exists := c.Get(UserIDKey); exists {
		if userID, ok := val.(uuid.UUID); ok {
			return userID
		}
	}
	return uuid.Nil
}

// GetIdentity returns the verified identity from context, or nil.
func GetIdentity(c *gin.Context) *identity.Identity {
	if val, exists := c.Get(IdentityKey); exists {
		if id, ok := val.(*identity.Identity); ok {
			return id
		}
	}
	return nil
}

// IsAuthenticated returns true if the user is authenticated.
func IsAuthenticated(c *gin.Context) bool {
	return GetUserID(c) != uuid.Nil
}
