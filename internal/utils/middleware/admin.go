package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminChecker reports whether the user holds the admin flag.
type AdminChecker func(ctx context.Context, userID uuid.UUID) (bool, error)

// RequireAdmin returns a middleware that restricts the route to admin
// accounts. Must run after RequireAuth.
func RequireAdmin(isAdmin AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "authentication required",
				},
			})
			return
		}

		ok, err := isAdmin(c.Request.Context(), userID)
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "admin access required",
				},
			})
			return
		}

		c.Next()
	}
}
