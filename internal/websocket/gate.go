package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dm-chat-service/internal/auth"

	"github.com/gorilla/websocket"
)

// credentialsFromRequest looks for a token in the query string, then in the
// Authorization header.
func credentialsFromRequest(r *http.Request) (token, email string) {
	query := r.URL.Query()
	token = strings.TrimSpace(query.Get("token"))
	email = strings.TrimSpace(query.Get("email"))

	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	return token, email
}

// authenticate runs once per socket before any room event is read. When the
// request carried no credential the first frame must be an auth frame.
func (h *Hub) authenticate(r *http.Request, conn *websocket.Conn) (auth.Identity, error) {
	token, email := credentialsFromRequest(r)

	if token == "" {
		var err error
		token, email, err = h.readAuthFrame(conn)
		if err != nil {
			return auth.Identity{}, err
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.handshakeTimeout)
	defer cancel()

	subject, err := h.verifier.Verify(ctx, token)
	if err != nil {
		var authErr *auth.AuthError
		if !errors.As(err, &authErr) {
			err = &auth.AuthError{Reason: "invalid token", Err: err}
		}
		return auth.Identity{}, err
	}

	return auth.Identity{ID: subject, Email: email}, nil
}

func (h *Hub) readAuthFrame(conn *websocket.Conn) (token, email string, err error) {
	missing := &auth.AuthError{Reason: "authentication token required", Err: auth.ErrMissingToken}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", "", missing
	}

	msg, err := DecodeMessage(raw)
	if err != nil || msg.Type != MessageTypeAuth {
		return "", "", missing
	}

	data, err := decodeAuth(msg.Data)
	if err != nil {
		return "", "", missing
	}
	return strings.TrimSpace(data.Token), strings.TrimSpace(data.Email), nil
}

// rejectConnection tells the peer why, then closes with a policy violation
func (h *Hub) rejectConnection(conn *websocket.Conn, err error) {
	defer conn.Close()

	message := "authentication failed"
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		message = authErr.Reason
	}

	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(NewConnectErrorMessage(message)); err != nil {
		h.logger.Debug("Failed to write connect_error", "error", err)
		return
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		deadline,
	)
}
