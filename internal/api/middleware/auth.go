package middleware

import (
	"errors"
	"net/http"
	"strings"

	"dm-chat-service/internal/auth"
	"dm-chat-service/internal/models"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key holding the authenticated subject
const ContextUserID = "user_id"

type AuthMiddleware struct {
	verifier auth.TokenVerifier
	logger   *logger.Logger
}

func NewAuthMiddleware(verifier auth.TokenVerifier, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   log,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    response.ErrCodeUnauthorized,
				Message: "authorization header is required",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		userID, err := am.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			am.logger.Debug("Rejected bearer token", "path", c.FullPath(), "error", err)

			message := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Code:    response.ErrCodeUnauthorized,
				Message: message,
			})
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// GetUserID returns the subject set by RequireAuth
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserID)
	return userID, userID != ""
}
