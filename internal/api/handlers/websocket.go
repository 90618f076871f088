package handlers

import (
	"dm-chat-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Upgrade to a chat socket. The credential comes from the token query parameter, a Bearer Authorization header or a first {"type":"auth"} frame.
// @Tags websocket
// @Param token query string false "Access token"
// @Param email query string false "Email recorded in the user directory"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
