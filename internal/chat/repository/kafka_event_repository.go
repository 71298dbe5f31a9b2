package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"realtime_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter subset of *kafka.Writer used by the sink
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventSink publish hub events to the outbound topic, keyed by hub topic
type KafkaEventSink struct {
	writer KafkaWriter
}

// NewKafkaEventSink create KafkaEventSink
func NewKafkaEventSink(writer KafkaWriter) *KafkaEventSink {
	return &KafkaEventSink{writer: writer}
}

// Publish write one event, same topic lands on the same partition
func (k *KafkaEventSink) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Topic),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	})
}

// Close flush and close the writer
func (k *KafkaEventSink) Close() error {
	return k.writer.Close()
}
