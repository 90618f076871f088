package handlers

import (
	"context"
	"net/http"

	"dm-chat-service/internal/api/middleware"
	"dm-chat-service/internal/models"
	"dm-chat-service/internal/room"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// MessageHistory reads a room log
type MessageHistory interface {
	History(ctx context.Context, roomID string) ([]models.Message, error)
}

type ChatHandler struct {
	chat   MessageHistory
	logger *logger.Logger
}

func NewChatHandler(chat MessageHistory, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: log}
}

// GetRoomWith godoc
// @Summary Resolve a conversation
// @Description Room id of the one-to-one conversation between the caller and peerId
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param peerId path string true "Peer user ID"
// @Success 200 {object} models.RoomResponse
// @Failure 400 {object} models.ErrorResponse "Invalid peer ID"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Router /api/rooms/with/{peerId} [get]
func (h *ChatHandler) GetRoomWith(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	roomID, err := room.Resolve(userID, c.Param("peerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Code:    response.ErrCodeInvalidMessage,
			Message: "invalid peer id",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.RoomResponse{RoomID: roomID})
}

// GetRoomMessages godoc
// @Summary Get chat messages in a room
// @Description Whole history of a room the caller participates in, oldest first
// @Tags chats
// @Produce json
// @Security BearerAuth
// @Param roomId path string true "Room ID"
// @Success 200 {object} models.MessageListResponse
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 403 {object} models.ErrorResponse "Caller is not a participant"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /api/rooms/{roomId}/messages [get]
func (h *ChatHandler) GetRoomMessages(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	roomID := c.Param("roomId")

	if !room.IsParticipant(roomID, userID) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Code:    response.ErrCodeForbidden,
			Message: response.Msg(response.ErrCodeForbidden),
		})
		return
	}

	messages, err := h.chat.History(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("Failed to get messages", "roomID", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    response.ErrCodeInternal,
			Message: response.Msg(response.ErrCodeInternal),
		})
		return
	}

	c.JSON(http.StatusOK, models.MessageListResponse{Messages: messages})
}
