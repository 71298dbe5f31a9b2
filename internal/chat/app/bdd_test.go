package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/config"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"

	"github.com/cucumber/godog"
)

// chatWorld state of one scenario, backed by in-memory repositories
type chatWorld struct {
	base     time.Time
	now      time.Time
	lastSend time.Time

	rooms    *memRoomRepo
	messages *memMessageRepo
	profiles *memProfileRepo
	hub      *Hub

	roomUC     *RoomUseCase
	messageUC  *MessageUseCase
	presenceUC *PresenceUseCase

	current *domain.Room
	created []*domain.Room
	subs    map[string]*Subscription
	lastErr error
	written bool
}

func newChatWorld() *chatWorld {
	w := &chatWorld{
		base:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		rooms:    newMemRoomRepo(),
		messages: newMemMessageRepo(),
		profiles: newMemProfileRepo(),
		hub:      NewHub(WithReorderWindow(50 * time.Millisecond)),
		subs:     make(map[string]*Subscription),
	}
	w.now = w.base
	clock := func() time.Time { return w.now }

	policy := config.DefaultPolicy()
	w.roomUC = NewRoomUseCase(w.rooms, w.profiles, w.messages, w.hub, policy)
	w.roomUC.now = clock
	w.messageUC = NewMessageUseCase(w.rooms, w.messages, w.profiles, w.hub, nil, policy)
	w.messageUC.now = clock
	w.presenceUC = NewPresenceUseCase(w.profiles, w.rooms, newMemHeartbeatGate(), policy)
	w.presenceUC.now = clock
	return w
}

func (w *chatWorld) userExists(id string) error {
	w.profiles.put(domain.Profile{ID: id, Username: id})
	return nil
}

func (w *chatWorld) setLastSeen(id string, ago time.Duration) error {
	p, err := w.profiles.FindByID(context.Background(), id)
	if err != nil {
		return err
	}
	seen := w.now.Add(-ago)
	p.LastSeen = &seen
	w.profiles.put(*p)
	return nil
}

func (w *chatWorld) userOnline(id string) error  { return w.setLastSeen(id, time.Minute) }
func (w *chatWorld) userOffline(id string) error { return w.setLastSeen(id, time.Hour) }

func (w *chatWorld) createDirect(userID, otherID string) error {
	room, err := w.roomUC.CreateDirectRoom(context.Background(), userID, otherID)
	w.lastErr = err
	if err == nil {
		w.current = room
		w.created = append(w.created, room)
	}
	return nil
}

func (w *chatWorld) directExists(userID, otherID string) error {
	if err := w.createDirect(userID, otherID); err != nil {
		return err
	}
	return w.lastErr
}

func (w *chatWorld) createGroup(userID, name, members string) error {
	room, err := w.roomUC.CreateGroupRoom(context.Background(), userID, name, strings.Split(members, ","))
	if err != nil {
		return err
	}
	w.current = room
	return nil
}

func (w *chatWorld) sameRoom() error {
	if len(w.created) != 2 {
		return fmt.Errorf("expected 2 rooms, got %d", len(w.created))
	}
	if w.created[0].ID != w.created[1].ID {
		return fmt.Errorf("rooms differ: %s != %s", w.created[0].ID, w.created[1].ID)
	}
	return nil
}

func (w *chatWorld) roomHasOnly(a, b string) error {
	members, err := w.rooms.ListMembers(context.Background(), w.current.ID)
	if err != nil {
		return err
	}
	if len(members) != 2 {
		return fmt.Errorf("expected 2 members, got %d", len(members))
	}
	ids := map[string]bool{members[0].UserID: true, members[1].UserID: true}
	if !ids[a] || !ids[b] {
		return fmt.Errorf("unexpected members %v", ids)
	}
	return nil
}

func (w *chatWorld) send(userID, content string) {
	_, w.lastErr = w.messageUC.Append(context.Background(), AppendRequest{
		RoomID:   w.current.ID,
		SenderID: userID,
		Content:  content,
	})
}

func (w *chatWorld) sendMessage(userID, content string) error {
	w.now = w.now.Add(time.Second)
	w.lastSend = w.now
	w.send(userID, content)
	return nil
}

func (w *chatWorld) sendAfter(userID string, ms int, content string) error {
	w.now = w.lastSend.Add(time.Duration(ms) * time.Millisecond)
	w.send(userID, content)
	return nil
}

func (w *chatWorld) sendLength(userID string, n int) error {
	return w.sendMessage(userID, strings.Repeat("a", n))
}

func (w *chatWorld) sendPadded(userID string, n int) error {
	return w.sendMessage(userID, strings.Repeat("a", n)+" ")
}

func (w *chatWorld) sendMany(userID string, n int) error {
	for i := 1; i <= n; i++ {
		if err := w.sendMessage(userID, fmt.Sprintf("message %d", i)); err != nil {
			return err
		}
		if w.lastErr != nil {
			return w.lastErr
		}
	}
	return nil
}

func (w *chatWorld) succeeded(string) error {
	if w.lastErr != nil {
		return fmt.Errorf("expected success, got %v", w.lastErr)
	}
	return nil
}

func (w *chatWorld) failedWith(kind string) error {
	if w.lastErr == nil {
		return fmt.Errorf("expected %s error, got success", kind)
	}
	if got := errprocess.KindOf(w.lastErr); got != errprocess.Kind(kind) {
		return fmt.Errorf("expected %s error, got %s (%v)", kind, got, w.lastErr)
	}
	return nil
}

func (w *chatWorld) lastContentIs(content string) error {
	if got := w.messages.last().Content; got != content {
		return fmt.Errorf("expected %q, got %q", content, got)
	}
	return nil
}

func (w *chatWorld) awaitingIs(userID, value string) error {
	m, err := w.rooms.FindMembership(context.Background(), w.current.ID, userID)
	if err != nil {
		return err
	}
	if want := value == "true"; m.Awaiting != want {
		return fmt.Errorf("%s awaiting = %v, want %v", userID, m.Awaiting, want)
	}
	return nil
}

func (w *chatWorld) markRead(userID string) error {
	w.now = w.now.Add(time.Second)
	return w.roomUC.MarkRead(context.Background(), w.current.ID, userID)
}

func (w *chatWorld) subscribe(userID string) error {
	w.subs[userID] = w.hub.SubscribeMessageEvents(w.current.ID)
	return nil
}

func (w *chatWorld) receivedInOrder(userID string, n int) error {
	sub, ok := w.subs[userID]
	if !ok {
		return fmt.Errorf("%s has no subscription", userID)
	}
	for i := 1; i <= n; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Seq != int64(i) {
				return fmt.Errorf("event %d has seq %d", i, ev.Seq)
			}
			if want := fmt.Sprintf("message %d", i); ev.Message.Content != want {
				return fmt.Errorf("event %d content %q, want %q", i, ev.Message.Content, want)
			}
		case <-time.After(time.Second):
			return fmt.Errorf("timed out waiting for event %d", i)
		}
	}
	return nil
}

func (w *chatWorld) pageAll(limit, total int) error {
	ctx := context.Background()
	seen := make(map[string]bool, total)
	var cursor domain.PageCursor
	var oldest int64
	for {
		page, err := w.messageUC.Page(ctx, w.current.ID, w.current.CreatedBy, cursor, limit)
		if err != nil {
			return err
		}
		for i, m := range page.Messages {
			if seen[m.ID] {
				return fmt.Errorf("duplicate message %s", m.ID)
			}
			seen[m.ID] = true
			if i > 0 && page.Messages[i-1].Seq >= m.Seq {
				return fmt.Errorf("page not ascending at seq %d", m.Seq)
			}
			if oldest != 0 && m.Seq >= oldest {
				return fmt.Errorf("page overlaps newer page at seq %d", m.Seq)
			}
		}
		if len(page.Messages) > 0 {
			oldest = page.Messages[0].Seq
		}
		if !page.HasMore {
			break
		}
		cursor = *page.NextCursor
	}
	if len(seen) != total {
		return fmt.Errorf("expected %d messages, got %d", total, len(seen))
	}
	return nil
}

func (w *chatWorld) deleteRoom(userID string) error {
	w.lastErr = w.roomUC.DeleteRoom(context.Background(), w.current.ID, userID)
	return nil
}

func (w *chatWorld) heartbeatAt(userID string, sec int) error {
	w.now = w.base.Add(time.Duration(sec) * time.Second)
	written, err := w.presenceUC.Heartbeat(context.Background(), userID)
	if err != nil {
		return err
	}
	w.written = written
	return nil
}

func (w *chatWorld) heartbeatResult(result string) error {
	if want := result == "寫入"; w.written != want {
		return fmt.Errorf("heartbeat written = %v, want %v", w.written, want)
	}
	return nil
}

// InitializeChatScenario register chat steps, one world per scenario
func InitializeChatScenario(ctx *godog.ScenarioContext) {
	w := newChatWorld()
	ctx.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		w.hub.Close()
		return c, err
	})

	ctx.Step(`^使用者 "([^"]*)" 已存在$`, w.userExists)
	ctx.Step(`^"([^"]*)" 在線$`, w.userOnline)
	ctx.Step(`^"([^"]*)" 離線$`, w.userOffline)
	ctx.Step(`^"([^"]*)" 建立與 "([^"]*)" 的 1對1 聊天室$`, w.createDirect)
	ctx.Step(`^"([^"]*)" 與 "([^"]*)" 的 1對1 聊天室已存在$`, w.directExists)
	ctx.Step(`^"([^"]*)" 建立群組 "([^"]*)" 成員 "([^"]*)"$`, w.createGroup)
	ctx.Step(`^兩次取得的聊天室相同$`, w.sameRoom)
	ctx.Step(`^聊天室只包含 "([^"]*)" 和 "([^"]*)"$`, w.roomHasOnly)
	ctx.Step(`^"([^"]*)" 發送訊息 "([^"]*)"$`, w.sendMessage)
	ctx.Step(`^"([^"]*)" 在 (\d+) 毫秒後發送訊息 "([^"]*)"$`, w.sendAfter)
	ctx.Step(`^"([^"]*)" 發送 (\d+) 個字元的訊息$`, w.sendLength)
	ctx.Step(`^"([^"]*)" 發送 (\d+) 個字元加一個空白的訊息$`, w.sendPadded)
	ctx.Step(`^"([^"]*)" 連續發送 (\d+) 則訊息$`, w.sendMany)
	ctx.Step(`^(發送|操作)成功$`, w.succeeded)
	ctx.Step(`^失敗且錯誤為 "([^"]*)"$`, w.failedWith)
	ctx.Step(`^儲存的最後一則訊息內容為 "([^"]*)"$`, w.lastContentIs)
	ctx.Step(`^"([^"]*)" 的 awaiting 為 (true|false)$`, w.awaitingIs)
	ctx.Step(`^"([^"]*)" 已讀目前聊天室$`, w.markRead)
	ctx.Step(`^"([^"]*)" 訂閱目前聊天室$`, w.subscribe)
	ctx.Step(`^"([^"]*)" 依序收到 (\d+) 則訊息$`, w.receivedInOrder)
	ctx.Step(`^以每頁 (\d+) 則往回分頁可以取得全部 (\d+) 則訊息且沒有重複$`, w.pageAll)
	ctx.Step(`^"([^"]*)" 刪除目前聊天室$`, w.deleteRoom)
	ctx.Step(`^"([^"]*)" 在第 (\d+) 秒送出 heartbeat$`, w.heartbeatAt)
	ctx.Step(`^heartbeat 結果為(寫入|略過)$`, w.heartbeatResult)
}

// 測試聊天核心行為 (features/chat.feature)
func TestChatFeatures(t *testing.T) {
	logger.SetNewNop()
	suite := godog.TestSuite{
		Name:                "chat",
		ScenarioInitializer: InitializeChatScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
