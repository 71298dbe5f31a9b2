package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"realtime_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

// 測試 KafkaEventSink.Publish 以 topic 作為 key
func TestKafkaEventSink_Publish(t *testing.T) {
	w := &fakeKafkaWriter{}
	sink := NewKafkaEventSink(w)

	ev := domain.NewMessageEvent(domain.Message{ID: "m1", RoomID: "r1", SenderID: "u1", Content: "hi", Seq: 1})
	require.NoError(t, sink.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	assert.Equal(t, domain.RoomTopic("r1"), string(w.msgs[0].Key))
	var got domain.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, domain.EventMessage, got.Kind)
	assert.Equal(t, "m1", got.Message.ID)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

// 測試 KafkaEventSink.Publish 寫入失敗
func TestKafkaEventSink_PublishError(t *testing.T) {
	w := &fakeKafkaWriter{err: errors.New("broker down")}
	sink := NewKafkaEventSink(w)

	err := sink.Publish(context.Background(), domain.NewSkipEvent("r1", 3))
	assert.Error(t, err)
}
