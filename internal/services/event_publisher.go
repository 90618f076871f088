package services

import (
	"encoding/json"
	"fmt"
	"time"

	"dm-chat-service/internal/models"

	"github.com/IBM/sarama"
)

const EventMessageCreated = "message.created"

// MessageEvent is what downstream consumers read from the message stream
type MessageEvent struct {
	Type      string    `json:"type"`
	ID        uint64    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewEventPublisher(producer sarama.SyncProducer, topic string) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		topic:    topic,
	}
}

// PublishMessageCreated emits one event per stored message, keyed by room
func (p *EventPublisher) PublishMessageCreated(msg *models.Message) error {
	payload, err := json.Marshal(MessageEvent{
		Type:      EventMessageCreated,
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.RoomID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(EventMessageCreated)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", EventMessageCreated, err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	return p.producer.Close()
}
