package websocket

import (
	"context"
	"testing"
	"time"

	"dm-chat-service/internal/auth"
	"dm-chat-service/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectRejected(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeConnectError, msg.Type)
	assert.NotEmpty(t, decodeData[ConnectErrorData](t, msg).Message)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error: %v", err)
}

func TestServeWS_RejectsInvalidToken(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{})
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "token=forged")
	expectRejected(t, conn)
	assert.Zero(t, hub.ClientCount())
}

func TestServeWS_RejectsMissingCredential(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{HandshakeTimeout: 200 * time.Millisecond})
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "")
	expectRejected(t, conn)
	assert.Zero(t, hub.ClientCount())
}

func TestServeWS_EventsBeforeAuthAreNotProcessed(t *testing.T) {
	chat := &memoryChat{}
	hub := newTestHub(t, chat, Options{})
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "")
	sendEvent(t, conn, MessageTypeSendMessage, SendMessageData{Message: "early", RoomID: roomU1U2})

	expectRejected(t, conn)
	assert.Zero(t, chat.count())
	assert.Zero(t, hub.RoomCount())
}

func TestServeWS_AuthenticatesWithBearerHeader(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{})
	srv := newTestServer(t, hub)

	header := map[string][]string{"Authorization": {"Bearer valid:u1"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeConnected, msg.Type)
	assert.Equal(t, "u1", decodeData[ConnectedData](t, msg).UserID)
}

func TestServeWS_AuthenticatesWithFirstFrame(t *testing.T) {
	directory := &recordingDirectory{}
	hub := newTestHub(t, &memoryChat{}, Options{Directory: directory})
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "")
	sendEvent(t, conn, MessageTypeAuth, AuthData{Token: "valid:u1", Email: "u1@example.com"})

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeConnected, msg.Type)
	assert.Equal(t, "u1", decodeData[ConnectedData](t, msg).UserID)
	assert.Equal(t, []auth.Identity{{ID: "u1", Email: "u1@example.com"}}, directory.snapshot())
}

func TestServeWS_ChatBetweenTwoUsers(t *testing.T) {
	chat := newSQLiteChat(t)
	hub := newTestHub(t, chat, Options{})
	srv := newTestServer(t, hub)

	u1 := connectAs(t, srv, "u1")
	u2 := connectAs(t, srv, "u2")

	sendEvent(t, u1, MessageTypeJoinRoom, roomU1U2)
	sendEvent(t, u2, MessageTypeJoinRoom, roomU1U2)
	require.Eventually(t, func() bool { return len(hub.members(roomU1U2)) == 2 }, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, u1, MessageTypeSendMessage, SendMessageData{Message: "hi", RoomID: roomU1U2})

	for _, conn := range []*websocket.Conn{u1, u2} {
		msg := readMessage(t, conn)
		require.Equal(t, MessageTypeReceiveMessage, msg.Type)
		received := decodeData[models.ReceivedMessage](t, msg)
		assert.Equal(t, "hi", received.Message)
		assert.Equal(t, "u1", received.UserID)
		assert.Equal(t, roomU1U2, received.RoomID)
		assert.NotZero(t, received.ID)
	}

	sendEvent(t, u2, MessageTypeLoadMessages, roomU1U2)
	msg := readMessage(t, u2)
	require.Equal(t, MessageTypeChatHistory, msg.Type)
	history := decodeData[[]models.Message](t, msg)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "u1", history[0].SenderID)
}

func TestServeWS_ReconnectNeedsFreshJoin(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{})
	srv := newTestServer(t, hub)

	first := connectAs(t, srv, "u1")
	u2 := connectAs(t, srv, "u2")
	sendEvent(t, first, MessageTypeJoinRoom, roomU1U2)
	sendEvent(t, u2, MessageTypeJoinRoom, roomU1U2)
	require.Eventually(t, func() bool { return len(hub.members(roomU1U2)) == 2 }, 2*time.Second, 10*time.Millisecond)

	first.Close()
	require.Eventually(t, func() bool { return len(hub.members(roomU1U2)) == 1 }, 2*time.Second, 10*time.Millisecond)

	second := connectAs(t, srv, "u1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	sendEvent(t, u2, MessageTypeSendMessage, SendMessageData{Message: "are you there?", RoomID: roomU1U2})
	msg := readMessage(t, u2)
	require.Equal(t, MessageTypeReceiveMessage, msg.Type)

	// not joined yet on the new socket
	second.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)
}

func TestServeWS_DisconnectCleansMembership(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{})
	srv := newTestServer(t, hub)

	conn := connectAs(t, srv, "u1")
	sendEvent(t, conn, MessageTypeJoinRoom, roomU1U2)
	sendEvent(t, conn, MessageTypeJoinRoom, "chat_u1_u3")
	require.Eventually(t, func() bool { return hub.RoomCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.RoomCount() == 0 && hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_MalformedFrameKeepsConnection(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{})
	srv := newTestServer(t, hub)

	conn := connectAs(t, srv, "u1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)

	sendEvent(t, conn, MessageTypeLoadMessages, roomU1U2)
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeChatHistory, msg.Type)
}

func TestServeWS_StopClosesSockets(t *testing.T) {
	hub := newTestHub(t, &memoryChat{}, Options{})
	srv := newTestServer(t, hub)

	conn := connectAs(t, srv, "u1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Stop(ctx))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}
