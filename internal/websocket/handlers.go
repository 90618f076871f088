package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const registerTimeout = 5 * time.Second

// newUpgrader accepts the listed origins. "*" or an empty list allows any
// origin, and requests without an Origin header (non-browser clients) are
// always accepted.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}

// ServeWS upgrades the request, runs the handshake and starts the pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket connection", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	identity, err := h.authenticate(r, conn)
	if err != nil {
		h.logger.Info("WebSocket authentication rejected", "remoteAddr", r.RemoteAddr, "error", err)
		h.rejectConnection(conn, err)
		return
	}

	client := newClient(h, conn, identity)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	case <-time.After(registerTimeout):
		h.logger.Error("Timeout sending registration request", "clientID", client.id, "userID", identity.ID)
		conn.Close()
		return
	}

	if h.directory != nil {
		h.directory.Enqueue(identity.ID, identity.Email)
	}

	client.SendMessage(NewConnectedMessage(identity.ID))

	go client.writePump()
	go client.readPump()

	h.logger.Info("New WebSocket connection established", "clientID", client.id, "userID", identity.ID)
}
