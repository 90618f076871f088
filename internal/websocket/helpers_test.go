package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dm-chat-service/internal/auth"
	"dm-chat-service/internal/database"
	"dm-chat-service/internal/models"
	"dm-chat-service/internal/repositories"
	"dm-chat-service/internal/services"
	"dm-chat-service/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeVerifier accepts tokens of the form "valid:<subject>"
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", &auth.AuthError{Reason: "authentication token required", Err: auth.ErrMissingToken}
	}
	subject, ok := strings.CutPrefix(token, "valid:")
	if !ok || subject == "" {
		return "", &auth.AuthError{Reason: "invalid token"}
	}
	return subject, nil
}

// memoryChat is an in-process message log
type memoryChat struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   uint64
	failWith error
}

func (m *memoryChat) Append(_ context.Context, roomID, senderID, content string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, &services.StorageError{Op: "append message", Err: m.failWith}
	}
	m.nextID++
	msg := models.Message{
		ID:        m.nextID,
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memoryChat) History(_ context.Context, roomID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, &services.StorageError{Op: "load history", Err: m.failWith}
	}
	out := make([]models.Message, 0)
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryChat) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type recordingDirectory struct {
	mu      sync.Mutex
	entries []auth.Identity
}

func (d *recordingDirectory) Enqueue(id, email string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, auth.Identity{ID: id, Email: email})
	return true
}

func (d *recordingDirectory) snapshot() []auth.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]auth.Identity(nil), d.entries...)
}

type recordingEvents struct {
	mu  sync.Mutex
	ids []uint64
}

func (e *recordingEvents) PublishMessageCreated(msg *models.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, msg.ID)
	return nil
}

func newSQLiteChat(t *testing.T) *services.ChatService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	return services.NewChatService(repositories.NewMessageRepository(db))
}

func newTestHub(t *testing.T, chat ChatStore, opts Options) *Hub {
	t.Helper()

	hub := NewHub(chat, fakeVerifier{}, opts, logger.NewNop())
	go hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hub.Stop(ctx)
	})
	return hub
}

// newTestClient builds a client without a socket. Outbound frames stay in
// the send channel.
func newTestClient(hub *Hub, userID string) *Client {
	return newClient(hub, nil, auth.Identity{ID: userID})
}

func drain(t *testing.T, c *Client) []*Message {
	t.Helper()

	var out []*Message
	for {
		select {
		case raw := <-c.send:
			var msg Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			out = append(out, &msg)
		default:
			return out
		}
	}
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connectAs dials with a valid token and consumes the connected frame
func connectAs(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	conn := dial(t, srv, "token=valid:"+userID)
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeConnected, msg.Type)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return &msg
}

func sendEvent(t *testing.T, conn *websocket.Conn, msgType MessageType, data interface{}) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{ID: "c1", Type: msgType, Data: raw}))
}

func decodeData[T any](t *testing.T, msg *Message) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	return out
}
