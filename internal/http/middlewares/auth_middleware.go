package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyToken(token string) (int64, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth rejects the request before any handler runs unless a valid
// bearer token is presented. The verified user id it stashes on the context
// is the only identity handlers may trust; ids in the request body are never
// consulted.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   true,
				"code":    "unauthorized",
				"message": "Missing or invalid Authorization header",
			})
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   true,
				"code":    "unauthorized",
				"message": "Missing access token",
			})
			return
		}

		userID, err := m.jwt.VerifyToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   true,
				"code":    "invalid_token",
				"message": "Invalid or expired access token",
			})
			return
		}

		c.Set(ctxUserIDKey, userID)

		c.Next()
	}
}

// Helper so handlers don't need to know the magic key.

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
