package handlers

import (
	"context"
	"errors"
	"net/http"

	"dm-chat-service/internal/api/middleware"
	"dm-chat-service/internal/models"
	"dm-chat-service/internal/services"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// UserDirectory is the read side of the user directory
type UserDirectory interface {
	ListUsers(ctx context.Context, callerID string) ([]models.UserResponse, error)
	Profile(ctx context.Context, userID string) (*models.UserResponse, error)
}

type UserHandler struct {
	directory UserDirectory
	logger    *logger.Logger
}

func NewUserHandler(directory UserDirectory, log *logger.Logger) *UserHandler {
	return &UserHandler{directory: directory, logger: log}
}

// ListUsers godoc
// @Summary List users
// @Description Every known user except the caller, ordered by email. The online flag is present when presence tracking is enabled.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserListResponse
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Code:    response.ErrCodeUnauthorized,
			Message: response.Msg(response.ErrCodeUnauthorized),
		})
		return
	}

	users, err := h.directory.ListUsers(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list users", "userID", userID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    response.ErrCodeInternal,
			Message: response.Msg(response.ErrCodeInternal),
		})
		return
	}

	c.JSON(http.StatusOK, models.UserListResponse{Users: users})
}

// GetProfile godoc
// @Summary Get user profile
// @Description Directory entry of the authenticated caller
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserResponse "User profile retrieved successfully"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 404 {object} models.ErrorResponse "Caller has not connected yet"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /api/users/profile [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Code:    response.ErrCodeUnauthorized,
			Message: response.Msg(response.ErrCodeUnauthorized),
		})
		return
	}

	profile, err := h.directory.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Code:    response.ErrCodeNotFound,
				Message: "user not found",
			})
			return
		}
		h.logger.Error("Failed to load profile", "userID", userID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    response.ErrCodeInternal,
			Message: response.Msg(response.ErrCodeInternal),
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}
