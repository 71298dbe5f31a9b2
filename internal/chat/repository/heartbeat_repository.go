package repository

import (
	"context"
	"time"

	"realtime_chat_service/pkg/database"
)

// HeartbeatGate allow one heartbeat write per user per interval across nodes
type HeartbeatGate interface {
	// Acquire true when the caller may write last_seen now
	Acquire(ctx context.Context, userID string, at time.Time, interval time.Duration) (bool, error)
}

type redisHeartbeatGate struct {
	store database.RedisRepository[int64]
}

// NewRedisHeartbeatGate create HeartbeatGate on top of a redis repository
func NewRedisHeartbeatGate(store database.RedisRepository[int64]) HeartbeatGate {
	return &redisHeartbeatGate{store: store}
}

func heartbeatKey(userID string) string {
	return "chat:presence:heartbeat:" + userID
}

func (g *redisHeartbeatGate) Acquire(ctx context.Context, userID string, at time.Time, interval time.Duration) (bool, error) {
	return g.store.SetNX(ctx, heartbeatKey(userID), at.UnixMilli(), interval)
}
