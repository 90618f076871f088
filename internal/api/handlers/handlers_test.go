package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dm-chat-service/internal/api/middleware"
	"dm-chat-service/internal/models"
	"dm-chat-service/internal/services"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDirectory struct {
	users   []models.UserResponse
	profile *models.UserResponse
	err     error
	caller  string
}

func (f *fakeDirectory) ListUsers(_ context.Context, callerID string) ([]models.UserResponse, error) {
	f.caller = callerID
	return f.users, f.err
}

func (f *fakeDirectory) Profile(_ context.Context, userID string) (*models.UserResponse, error) {
	f.caller = userID
	return f.profile, f.err
}

type fakeHistory struct {
	messages []models.Message
	err      error
	rooms    []string
}

func (f *fakeHistory) History(_ context.Context, roomID string) ([]models.Message, error) {
	f.rooms = append(f.rooms, roomID)
	return f.messages, f.err
}

// asUser stands in for RequireAuth
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	}
}

func newUserRouter(dir UserDirectory, userID string) *gin.Engine {
	h := NewUserHandler(dir, logger.NewNop())
	r := gin.New()
	r.Use(asUser(userID))
	r.GET("/api/users", h.ListUsers)
	r.GET("/api/users/profile", h.GetProfile)
	return r
}

func newChatRouter(chat MessageHistory, userID string) *gin.Engine {
	h := NewChatHandler(chat, logger.NewNop())
	r := gin.New()
	r.Use(asUser(userID))
	r.GET("/api/rooms/with/:peerId", h.GetRoomWith)
	r.GET("/api/rooms/:roomId/messages", h.GetRoomMessages)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListUsers(t *testing.T) {
	online := true
	dir := &fakeDirectory{users: []models.UserResponse{
		{ID: "u2", Email: "b@x.com", Online: &online},
	}}

	w := get(newUserRouter(dir, "u1"), "/api/users")

	require.Equal(t, http.StatusOK, w.Code)
	var body models.UserListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	assert.Equal(t, "u2", body.Users[0].ID)
	assert.Equal(t, "u1", dir.caller)
}

func TestListUsers_Unauthenticated(t *testing.T) {
	w := get(newUserRouter(&fakeDirectory{}, ""), "/api/users")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListUsers_StoreFailure(t *testing.T) {
	w := get(newUserRouter(&fakeDirectory{err: errors.New("db down")}, "u1"), "/api/users")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), response.ErrCodeInternal)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestGetProfile(t *testing.T) {
	dir := &fakeDirectory{profile: &models.UserResponse{ID: "u1", Email: "a@x.com", CreatedAt: time.Now()}}

	w := get(newUserRouter(dir, "u1"), "/api/users/profile")

	require.Equal(t, http.StatusOK, w.Code)
	var body models.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "a@x.com", body.Email)
}

func TestGetProfile_NotFound(t *testing.T) {
	w := get(newUserRouter(&fakeDirectory{err: services.ErrUserNotFound}, "u1"), "/api/users/profile")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), response.ErrCodeNotFound)
}

func TestGetRoomWith(t *testing.T) {
	w := get(newChatRouter(&fakeHistory{}, "u2"), "/api/rooms/with/u1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"roomId":"chat_u1_u2"}`, w.Body.String())
}

func TestGetRoomWith_NoCaller(t *testing.T) {
	w := get(newChatRouter(&fakeHistory{}, ""), "/api/rooms/with/u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRoomMessages(t *testing.T) {
	history := &fakeHistory{messages: []models.Message{
		{ID: 1, RoomID: "chat_u1_u2", SenderID: "u1", Content: "hi"},
		{ID: 2, RoomID: "chat_u1_u2", SenderID: "u2", Content: "yo"},
	}}

	w := get(newChatRouter(history, "u1"), "/api/rooms/chat_u1_u2/messages")

	require.Equal(t, http.StatusOK, w.Code)
	var body models.MessageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "hi", body.Messages[0].Content)
	assert.Equal(t, []string{"chat_u1_u2"}, history.rooms)
}

func TestGetRoomMessages_Forbidden(t *testing.T) {
	tests := []struct {
		name   string
		roomID string
	}{
		{name: "other pair", roomID: "chat_u2_u3"},
		{name: "not canonical", roomID: "chat_u2_u1"},
		{name: "not a room", roomID: "general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := &fakeHistory{}
			w := get(newChatRouter(history, "u1"), "/api/rooms/"+tt.roomID+"/messages")

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Contains(t, w.Body.String(), response.ErrCodeForbidden)
			assert.Empty(t, history.rooms)
		})
	}
}

func TestGetRoomMessages_StoreFailure(t *testing.T) {
	w := get(newChatRouter(&fakeHistory{err: errors.New("db down")}, "u1"), "/api/rooms/chat_u1_u2/messages")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
