package repository

import (
	"context"
	"time"

	"realtime_chat_service/pkg/database"
)

// SendGate one accepted message per sender per interval across nodes
type SendGate interface {
	// Acquire true when senderID holds no slot taken within interval
	Acquire(ctx context.Context, senderID string, at time.Time, interval time.Duration) (bool, error)
	// Release give back a slot whose message was never stored
	Release(ctx context.Context, senderID string) error
}

type redisSendGate struct {
	store database.RedisRepository[int64]
}

// NewRedisSendGate create SendGate on top of a redis repository
func NewRedisSendGate(store database.RedisRepository[int64]) SendGate {
	return &redisSendGate{store: store}
}

func sendKey(senderID string) string {
	return "chat:send:" + senderID
}

// 一個發送者只有一個名額，key 存在期間就是冷卻時間
func (g *redisSendGate) Acquire(ctx context.Context, senderID string, at time.Time, interval time.Duration) (bool, error) {
	return g.store.SetNX(ctx, sendKey(senderID), at.UnixMilli(), interval)
}

func (g *redisSendGate) Release(ctx context.Context, senderID string) error {
	return g.store.Del(ctx, sendKey(senderID))
}
