package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tobyv/vidrelay/internal/auth"
)

// IdentityKey is the gin context key under which the authenticated user id is
// stored.
const IdentityKey = "user_id"

// JWTAuth validates the bearer token on every request and stores the bound
// identity in the context. Browsers cannot set headers on a WebSocket
// upgrade, so a `token` query parameter is accepted as a fallback there.
func JWTAuth(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization required",
			})
			return
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
			})
			return
		}

		c.Set(IdentityKey, claims.UserID)
		c.Next()
	}
}

// Identity returns the authenticated user id set by JWTAuth.
func Identity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
