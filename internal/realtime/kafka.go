package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"roomsync/internal/domain"
	"roomsync/pkg/logger"
)

// MessageWriter - часть kafka.Writer, которая нужна нотификатору
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter - асинхронный writer, сообщения одной комнаты попадают в одну партицию
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NotificationMessage - запись в топик для сервиса push-уведомлений
type NotificationMessage struct {
	MessageID string    `json:"messageId"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaNotifier пересылает пользовательские сообщения во внешний сервис уведомлений.
// Остальные события игнорируются.
type KafkaNotifier struct {
	w   MessageWriter
	log logger.Logger
}

func NewKafkaNotifier(w MessageWriter, log logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{w: w, log: log}
}

func (k *KafkaNotifier) Publish(ctx context.Context, ev domain.Event) error {
	if ev.Type != domain.EventMessage || len(ev.Data) == 0 {
		return nil
	}

	var msg domain.Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return fmt.Errorf("decode message event: %w", err)
	}
	if msg.Type != domain.MessageTypeUser {
		return nil
	}

	value, err := json.Marshal(NotificationMessage{
		MessageID: msg.ID,
		Room:      msg.Room,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return err
	}

	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(msg.Room), Value: value, Time: ev.Timestamp}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.w.Close()
}
