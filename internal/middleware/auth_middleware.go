package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/buslink/booking-backend/pkg/jwt"
)

const userContextKey = "user_context"

// UserContext carries the authenticated staff identity through a request
type UserContext struct {
	UserID uuid.UUID
	Role   string
}

// AuthMiddleware validates the Bearer token and attaches the user
// context. Staff-only routes sit behind it; passenger booking routes
// and the payment webhook do not.
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userContextKey, &UserContext{
			UserID: claims.UserID,
			Role:   claims.Role,
		})

		c.Next()
	}
}

// GetUserContext retrieves the authenticated user from the gin context
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}

	userCtx, ok := value.(*UserContext)
	return userCtx, ok
}
