package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mediavault/mediavault/pkg/types"
)

// AuthMiddleware validates JWT tokens and API keys
func AuthMiddleware(authService AuthValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for JWT token in Authorization header
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")

			user, err := authService.ValidateToken(c.Request.Context(), token)
			if err == nil {
				c.Set("user", user)
				c.Next()
				return
			}
		}

		// Check for API key in X-API-Key header
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			user, _, err := authService.ValidateAPIKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set("user", user)
				c.Next()
				return
			}
		}

		c.JSON(http.StatusUnauthorized, types.APIResponse{
			Success: false,
			Error:   "unauthorized",
		})
		c.Abort()
	}
}

// AdminOnlyMiddleware ensures only admin users can access admin endpoints
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := GetUserFromContext(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, types.APIResponse{
				Success: false,
				Error:   "Authentication required",
			})
			c.Abort()
			return
		}

		if !user.IsAdmin {
			c.JSON(http.StatusForbidden, types.APIResponse{
				Success: false,
				Error:   "Admin privileges required",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserFromContext extracts the authenticated user from gin context
func GetUserFromContext(c *gin.Context) (*types.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	typedUser, ok := user.(*types.User)
	return typedUser, ok
}
