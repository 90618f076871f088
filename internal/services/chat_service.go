package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dm-chat-service/internal/models"
)

var ErrStorage = errors.New("storage error")

// StorageError wraps a failure of the message store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// MessageStore is the persistence the chat service appends to
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByRoom(ctx context.Context, roomID string) ([]models.Message, error)
}

type ChatService struct {
	store MessageStore

	clockMu sync.Mutex
	last    time.Time
	now     func() time.Time
}

func NewChatService(store MessageStore) *ChatService {
	return &ChatService{
		store: store,
		now:   time.Now,
	}
}

// nextTimestamp returns a strictly increasing time with microsecond
// precision, which is what every supported SQL dialect keeps.
func (s *ChatService) nextTimestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Append stores content as a new message of roomID sent by senderID
func (s *ChatService) Append(ctx context.Context, roomID, senderID, content string) (*models.Message, error) {
	msg := &models.Message{
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.nextTimestamp(),
	}

	if err := s.store.Create(ctx, msg); err != nil {
		return nil, &StorageError{Op: "append message", Err: err}
	}
	return msg, nil
}

// History returns every message of roomID in creation order
func (s *ChatService) History(ctx context.Context, roomID string) ([]models.Message, error) {
	messages, err := s.store.FindByRoom(ctx, roomID)
	if err != nil {
		return nil, &StorageError{Op: "load history", Err: err}
	}
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	return messages, nil
}
