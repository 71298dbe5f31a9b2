package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisPubSub definition redis pub/sub bridge between chat nodes
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish 將 event 序列化後，發布到 event.Topic
func (r *RedisPubSub) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, ev.Topic, data).Err()
}

// Subscribe 以 pattern 訂閱，收到訊息後呼叫 handler 處理，ctx 取消時關閉訂閱
func (r *RedisPubSub) Subscribe(ctx context.Context, pattern string, handler func(ev domain.Event)) error {
	sub := r.client.PSubscribe(ctx, pattern)
	// 確認訂閱成功
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var ev domain.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					logger.Log.Error("redis pubsub decode err", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				handler(ev)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", pattern))
				return
			}
		}
	}()
	return nil
}
