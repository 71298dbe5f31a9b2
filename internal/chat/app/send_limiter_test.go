package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"realtime_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// 測試每位發送者各自限流
func TestSendLimiter_Allow(t *testing.T) {
	l := NewSendLimiter(800*time.Millisecond, nil)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "alice", testNow))
	assert.False(t, l.Allow(ctx, "alice", testNow.Add(400*time.Millisecond)))
	assert.True(t, l.Allow(ctx, "bob", testNow.Add(400*time.Millisecond)))
	assert.False(t, l.Allow(ctx, "alice", testNow.Add(700*time.Millisecond)))
	assert.True(t, l.Allow(ctx, "alice", testNow.Add(900*time.Millisecond)))
}

// 測試 Release 之後可以立刻再送
func TestSendLimiter_Release(t *testing.T) {
	l := NewSendLimiter(800*time.Millisecond, nil)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "alice", testNow))
	l.Release(ctx, "alice")
	assert.True(t, l.Allow(ctx, "alice", testNow.Add(10*time.Millisecond)))
	assert.False(t, l.Allow(ctx, "alice", testNow.Add(20*time.Millisecond)))

	// 沒有可釋放的名額時不影響限流
	l.Release(ctx, "bob")
	assert.True(t, l.Allow(ctx, "bob", testNow))
}

// 測試共享限流：其他節點已占用名額時拒絕，且不占用本機名額
func TestSendLimiter_Shared(t *testing.T) {
	logger.SetNewNop()
	gate := new(MockSendGate)
	interval := 800 * time.Millisecond
	gate.On("Acquire", mock.Anything, "alice", testNow, interval).Return(false, nil).Once()
	gate.On("Acquire", mock.Anything, "alice", testNow.Add(100*time.Millisecond), interval).Return(true, nil).Once()
	gate.On("Release", mock.Anything, "alice").Return(nil).Once()
	l := NewSendLimiter(interval, gate)
	ctx := context.Background()

	assert.False(t, l.Allow(ctx, "alice", testNow))
	assert.True(t, l.Allow(ctx, "alice", testNow.Add(100*time.Millisecond)))
	l.Release(ctx, "alice")
	gate.AssertExpectations(t)
}

// 測試 redis 失敗時退回本機限流
func TestSendLimiter_SharedUnavailable(t *testing.T) {
	logger.SetNewNop()
	gate := new(MockSendGate)
	gate.On("Acquire", mock.Anything, "alice", mock.Anything, mock.Anything).Return(false, errors.New("connection refused"))
	l := NewSendLimiter(800*time.Millisecond, gate)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "alice", testNow))
	assert.False(t, l.Allow(ctx, "alice", testNow.Add(400*time.Millisecond)))
	gate.AssertNumberOfCalls(t, "Acquire", 1)
}

// 測試 Sweep 移除閒置的發送者
func TestSendLimiter_Sweep(t *testing.T) {
	l := NewSendLimiter(800*time.Millisecond, nil)
	ctx := context.Background()
	l.Allow(ctx, "alice", testNow)
	l.Allow(ctx, "bob", testNow.Add(time.Minute))

	removed := l.Sweep(testNow.Add(90*time.Second), time.Minute)
	assert.Equal(t, 1, removed)
	assert.True(t, l.Allow(ctx, "alice", testNow.Add(90*time.Second)))
}
