package models

import "time"

/** --------------------ENTITIES-------------------- */
// Message is an immutable chat line persisted in a room's log.
// Rows are ordered by (created_at, id).
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    string    `gorm:"type:varchar(600);not null;index:idx_messages_room_created,priority:1" json:"roomId"`
	SenderID  string    `gorm:"type:varchar(255);not null" json:"senderId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;precision:6;index:idx_messages_room_created,priority:2" json:"createdAt"`
}

/** -------------------- DTOs -------------------- */
// ReceivedMessage is the fan-out payload of a freshly persisted message
type ReceivedMessage struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Message) ToReceived() ReceivedMessage {
	return ReceivedMessage{
		ID:        m.ID,
		Message:   m.Content,
		RoomID:    m.RoomID,
		UserID:    m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}

// RoomResponse names the conversation between the caller and a peer
type RoomResponse struct {
	RoomID string `json:"roomId"`
}

// MessageListResponse is a room log, oldest first
type MessageListResponse struct {
	Messages []Message `json:"messages"`
}
