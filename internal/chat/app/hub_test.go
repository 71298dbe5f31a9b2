package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgEvent(roomID string, seq int64) domain.Event {
	return domain.NewMessageEvent(domain.Message{ID: "m" + string(rune('0'+seq)), RoomID: roomID, Seq: seq})
}

func recv(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return domain.Event{}
}

func assertNoEvent(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(wait):
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// 測試亂序到達的訊息依 seq 送出
func TestHub_OrderingBySeq(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.SeedRoom("r1", 1)

	hub.Publish(ctx, msgEvent("r1", 2))
	hub.Publish(ctx, msgEvent("r1", 3))
	assertNoEvent(t, sub, 50*time.Millisecond)

	hub.Publish(ctx, msgEvent("r1", 1))
	for _, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, recv(t, sub).Seq)
	}
}

// 測試重複的 seq 只送一次
func TestHub_DuplicateDropped(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.Publish(ctx, msgEvent("r1", 1))
	hub.Deliver(msgEvent("r1", 1))
	hub.Publish(ctx, msgEvent("r1", 2))

	assert.Equal(t, int64(1), recv(t, sub).Seq)
	assert.Equal(t, int64(2), recv(t, sub).Seq)
	assertNoEvent(t, sub, 50*time.Millisecond)
}

// 測試 Skip 釋放被卡住的後續訊息
func TestHub_SkipReleasesGap(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.SeedRoom("r1", 1)
	hub.Publish(ctx, msgEvent("r1", 2))
	assertNoEvent(t, sub, 30*time.Millisecond)

	hub.Skip(ctx, "r1", 1)
	ev := recv(t, sub)
	assert.Equal(t, int64(2), ev.Seq)
	assert.Equal(t, domain.EventMessage, ev.Kind)
}

// 測試超過 reorder window 的缺號先放行後面的訊息，晚到的訊息仍然送出
func TestHub_GapFlush(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(WithReorderWindow(30 * time.Millisecond))
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.SeedRoom("r1", 1)
	hub.Publish(ctx, msgEvent("r1", 2))
	assert.Equal(t, int64(2), recv(t, sub).Seq)

	// 寫入比 reorder window 慢的訊息
	time.Sleep(50 * time.Millisecond)
	hub.Publish(ctx, msgEvent("r1", 1))
	assert.Equal(t, int64(1), recv(t, sub).Seq)

	// 已送出的序號再到就是重複
	hub.Deliver(msgEvent("r1", 1))
	hub.Deliver(msgEvent("r1", 2))
	assertNoEvent(t, sub, 30*time.Millisecond)
}

// 測試沒有 SeedRoom 的房間：Reserve 過的序號依序送出
func TestHub_ReserveOrdersUnseededRoom(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.Reserve("r1", 1)
	hub.Reserve("r1", 2)

	hub.Publish(ctx, msgEvent("r1", 2))
	assertNoEvent(t, sub, 30*time.Millisecond)
	hub.Publish(ctx, msgEvent("r1", 1))

	assert.Equal(t, int64(1), recv(t, sub).Seq)
	assert.Equal(t, int64(2), recv(t, sub).Seq)
}

// 測試較晚 Reserve 的小序號在還沒送出任何訊息前會調低起點
func TestHub_ReserveLowersStart(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.Reserve("r1", 2)
	hub.Reserve("r1", 1)

	hub.Publish(ctx, msgEvent("r1", 2))
	assertNoEvent(t, sub, 30*time.Millisecond)
	hub.Publish(ctx, msgEvent("r1", 1))

	assert.Equal(t, int64(1), recv(t, sub).Seq)
	assert.Equal(t, int64(2), recv(t, sub).Seq)
}

// 測試沒有任何狀態的房間亂序到達也不會遺失訊息
func TestHub_UnseededOutOfOrderNotLost(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.Publish(ctx, msgEvent("r1", 2))
	hub.Publish(ctx, msgEvent("r1", 1))

	got := []int64{recv(t, sub).Seq, recv(t, sub).Seq}
	assert.ElementsMatch(t, []int64{1, 2}, got)

	hub.Deliver(msgEvent("r1", 1))
	assertNoEvent(t, sub, 30*time.Millisecond)
}

// 測試晚到的 Skip 不會送出任何事件
func TestHub_LateSkipIgnored(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(WithReorderWindow(20 * time.Millisecond))
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.SeedRoom("r1", 1)
	hub.Publish(ctx, msgEvent("r1", 2))
	assert.Equal(t, int64(2), recv(t, sub).Seq)

	hub.Skip(ctx, "r1", 1)
	hub.Publish(ctx, msgEvent("r1", 3))
	assert.Equal(t, int64(3), recv(t, sub).Seq)
	assertNoEvent(t, sub, 30*time.Millisecond)
}

// 測試 SeedRoom 不覆蓋已存在的狀態
func TestHub_SeedRoomKeepsState(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeMessageEvents("r1")
	hub.Publish(ctx, msgEvent("r1", 5))
	assert.Equal(t, int64(5), recv(t, sub).Seq)

	hub.SeedRoom("r1", 1)
	hub.Publish(ctx, msgEvent("r1", 6))
	assert.Equal(t, int64(6), recv(t, sub).Seq)
}

// 測試 Close 之後不再收到事件，也不影響同 topic 的其他訂閱
func TestHub_CloseIsIndependent(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	a := hub.SubscribeMessageEvents("r1")
	b := hub.SubscribeMessageEvents("r1")

	a.Close()
	a.Close()
	hub.Publish(ctx, msgEvent("r1", 1))

	select {
	case _, ok := <-a.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("closed subscription channel not closed")
	}
	assert.Equal(t, int64(1), recv(t, b).Seq)
}

// 測試 membership 事件只送到該使用者
func TestHub_RoomEventsScopedToUser(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()

	alice := hub.SubscribeRoomEvents("alice")
	bob := hub.SubscribeRoomEvents("bob")

	hub.Publish(ctx, domain.NewMembershipEvent(domain.RoomEvent{Type: domain.MembershipInsert, RoomID: "r1", UserID: "alice"}))

	ev := recv(t, alice)
	require.NotNil(t, ev.Membership)
	assert.Equal(t, "alice", ev.Membership.UserID)
	assertNoEvent(t, bob, 30*time.Millisecond)
}

// 測試太慢的訂閱者會被關閉
func TestHub_SlowSubscriberClosed(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(WithSubscriptionBuffer(2))
	defer hub.Close()
	ctx := context.Background()

	sub := hub.SubscribeRoomEvents("alice")
	for i := 0; i < 10; i++ {
		hub.Publish(ctx, domain.NewMembershipEvent(domain.RoomEvent{Type: domain.MembershipUpdate, RoomID: "r1", UserID: "alice"}))
	}

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscription not closed")
	}
}

// 測試 Publish 會送到 sink 並蓋上 node id，Deliver 不會
func TestHub_Sinks(t *testing.T) {
	logger.SetNewNop()
	sink := &recordingSink{}
	hub := NewHub(WithSink("test", sink))
	ctx := context.Background()

	hub.Publish(ctx, msgEvent("r1", 1))
	hub.Deliver(msgEvent("r1", 2))

	assert.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, hub.NodeID(), sink.events[0].Origin)
	assert.Equal(t, int64(1), sink.events[0].Seq)
}

// 測試 hub 關閉後訂閱立即結束
func TestHub_SubscribeAfterClose(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()
	hub.Close()

	sub := hub.SubscribeMessageEvents("r1")
	_, ok := <-sub.Events()
	assert.False(t, ok)
}
