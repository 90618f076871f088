package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"dm-chat-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MessageType is the "type" field of a websocket envelope
type MessageType string

const (
	// Client to server
	MessageTypeAuth         MessageType = "auth"
	MessageTypeJoinRoom     MessageType = "join_room"
	MessageTypeLoadMessages MessageType = "load_messages"
	MessageTypeSendMessage  MessageType = "send_message"

	// Server to client
	MessageTypeConnected      MessageType = "connected"
	MessageTypeChatHistory    MessageType = "chat_history"
	MessageTypeReceiveMessage MessageType = "receive_message"
	MessageTypeSendFailed     MessageType = "send_failed"
	MessageTypeConnectError   MessageType = "connect_error"
	MessageTypeError          MessageType = "error"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsClientEvent reports whether clients may send this type after the handshake
func (mt MessageType) IsClientEvent() bool {
	switch mt {
	case MessageTypeJoinRoom, MessageTypeLoadMessages, MessageTypeSendMessage:
		return true
	default:
		return false
	}
}

// Message is the envelope used in both directions
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

var errEmptyType = errors.New("message type is required")

// DecodeMessage parses one inbound frame
func DecodeMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errEmptyType
	}
	return &msg, nil
}

// Payloads

type AuthData struct {
	Token string `json:"token" validate:"required"`
	Email string `json:"email" validate:"omitempty,max=320"`
}

type RoomData struct {
	RoomID string `json:"roomId" validate:"required,max=512"`
}

type SendMessageData struct {
	Message string `json:"message" validate:"max=4000"`
	RoomID  string `json:"roomId" validate:"required,max=512"`
}

type ConnectedData struct {
	UserID string `json:"userId"`
}

type SendFailedData struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type ConnectErrorData struct {
	Message string `json:"message"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeRoom accepts either a bare room id string or {"roomId": "..."}
func decodeRoom(raw json.RawMessage) (RoomData, error) {
	var data RoomData
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(raw, &data); err != nil {
			return data, err
		}
	} else if err := json.Unmarshal(raw, &data.RoomID); err != nil {
		return data, err
	}
	return data, validate.Struct(data)
}

func decodeSendMessage(raw json.RawMessage) (SendMessageData, error) {
	var data SendMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, err
	}
	return data, validate.Struct(data)
}

func decodeAuth(raw json.RawMessage) (AuthData, error) {
	var data AuthData
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, err
	}
	return data, validate.Struct(data)
}

// Constructors

// NewMessage builds an outbound envelope around data
func NewMessage(msgType MessageType, data interface{}) *Message {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewConnectedMessage(userID string) *Message {
	return NewMessage(MessageTypeConnected, ConnectedData{UserID: userID})
}

func NewConnectErrorMessage(message string) *Message {
	return NewMessage(MessageTypeConnectError, ConnectErrorData{Message: message})
}

func NewErrorMessage(code, message string) *Message {
	return NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}

func NewReceiveMessage(msg *models.Message) *Message {
	return NewMessage(MessageTypeReceiveMessage, msg.ToReceived())
}

func NewChatHistoryMessage(messages []models.Message) *Message {
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	return NewMessage(MessageTypeChatHistory, messages)
}

func NewSendFailedMessage(roomID, message string) *Message {
	return NewMessage(MessageTypeSendFailed, SendFailedData{RoomID: roomID, Message: message})
}
