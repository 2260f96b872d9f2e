package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter builds a synchronous, leader-acked writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewReader builds a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		MaxWait:        time.Second,
	})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublishJSON writes payload JSON-encoded under key.
func PublishJSON(ctx context.Context, writer messageWriter, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
	})
}

// ParseMessageJSON decodes a message value into T.
func ParseMessageJSON[T any](msg kafka.Message) (T, error) {
	var payload T
	err := json.Unmarshal(msg.Value, &payload)
	return payload, err
}
