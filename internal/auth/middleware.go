package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware for downstream handlers.
const (
	contextUserID        = "auth_user_id"
	contextWalletAddress = "auth_wallet_address"
)

// AuthMiddleware rejects requests without a valid bearer token and exposes
// the authenticated user id and wallet address to handlers.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed bearer token",
			})
			return
		}

		claims, err := ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(contextUserID, claims.UserID)
		c.Set(contextWalletAddress, claims.WalletAddress)
		c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// GetUserID returns the authenticated user's id from the request context.
func GetUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(contextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetWalletAddress returns the authenticated wallet address from the request
// context.
func GetWalletAddress(c *gin.Context) (string, bool) {
	v, exists := c.Get(contextWalletAddress)
	if !exists {
		return "", false
	}
	addr, ok := v.(string)
	return addr, ok
}
