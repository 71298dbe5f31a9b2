package app

import (
	"context"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	last     *rate.Reservation
	lastAt   time.Time
	lastSeen time.Time
}

// SendLimiter at most one accepted message per sender per interval
type SendLimiter struct {
	mu       sync.Mutex
	m        map[string]*limiterEntry
	interval time.Duration
	shared   repository.SendGate
}

// NewSendLimiter create SendLimiter, shared is optional and holds the limit across nodes
func NewSendLimiter(interval time.Duration, shared repository.SendGate) *SendLimiter {
	return &SendLimiter{
		m:        make(map[string]*limiterEntry),
		interval: interval,
		shared:   shared,
	}
}

// Allow take the sender's slot at now if one is free
func (l *SendLimiter) Allow(ctx context.Context, senderID string, now time.Time) bool {
	if !l.allowLocal(senderID, now) {
		return false
	}
	if l.shared == nil {
		return true
	}
	ok, err := l.shared.Acquire(ctx, senderID, now, l.interval)
	if err != nil {
		// redis 不可用時只依本機限流
		logger.Log.Warn("shared send limit unavailable", zap.String("sender_id", senderID), zap.Error(err))
		return true
	}
	if !ok {
		l.releaseLocal(senderID)
		return false
	}
	return true
}

// Release give back the slot of the last Allow, its message was never stored
func (l *SendLimiter) Release(ctx context.Context, senderID string) {
	l.releaseLocal(senderID)
	if l.shared == nil {
		return
	}
	if err := l.shared.Release(ctx, senderID); err != nil {
		logger.Log.Warn("Failed to release shared send slot", zap.String("sender_id", senderID), zap.Error(err))
	}
}

func (l *SendLimiter) allowLocal(senderID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[senderID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.m[senderID] = e
	}
	e.lastSeen = now
	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return false
	}
	e.last, e.lastAt = r, now
	return true
}

func (l *SendLimiter) releaseLocal(senderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[senderID]
	if !ok || e.last == nil {
		return
	}
	// 以取得名額的時間取消，token 才會還回去
	e.last.CancelAt(e.lastAt)
	e.last = nil
}

// Sweep drop senders idle longer than ttl
func (l *SendLimiter) Sweep(now time.Time, ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, e := range l.m {
		if now.Sub(e.lastSeen) > ttl {
			delete(l.m, key)
			removed++
		}
	}
	return removed
}

// Run sweep idle senders until ctx is done
func (l *SendLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// 閒置超過一個週期的 limiter 已回滿，可安全移除
			l.Sweep(now, every+l.interval)
		}
	}
}
