package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/pkg/config"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxPageAttempts = 3

// Appender send a message to the log
type Appender interface {
	Append(ctx context.Context, roomID, content, clientMsgID string) (*domain.Message, error)
}

// Pager read history older than cursor, oldest first
type Pager interface {
	Page(ctx context.Context, roomID string, cursor domain.PageCursor, limit int) (*domain.MessagePage, error)
}

// Coordinator client view of one room: confirmed history plus optimistic pending sends.
// A confirmed message id is never visible twice.
type Coordinator struct {
	roomID   string
	userID   string
	appender Appender
	pager    Pager
	policy   config.Policy
	limiter  *rate.Limiter
	now      func() time.Time

	retryBackoff time.Duration

	mu        sync.Mutex
	confirmed []domain.Message // seq asc
	pending   []domain.Message // send order
	seen      map[string]struct{}
	hasMore   bool
	loaded    bool
}

// NewCoordinator create Coordinator for userID in roomID
func NewCoordinator(roomID, userID string, appender Appender, pager Pager, policy config.Policy) *Coordinator {
	policy = policy.WithDefaults()
	return &Coordinator{
		roomID:   roomID,
		userID:   userID,
		appender: appender,
		pager:    pager,
		policy:   policy,
		limiter:  rate.NewLimiter(rate.Every(policy.SendInterval), 1),
		now:      time.Now,
		seen:     make(map[string]struct{}),

		retryBackoff: 200 * time.Millisecond,
	}
}

// Send optimistic insert then append; on failure the pending entry is removed and
// the error returned as is, never retried
func (c *Coordinator) Send(ctx context.Context, content string) (*domain.Message, error) {
	if n := utf8.RuneCountInString(content); n > c.policy.MaxContentLength {
		return nil, errprocess.Validation("message too long: %d > %d characters", n, c.policy.MaxContentLength)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errprocess.Validation("message content cannot be empty")
	}
	if !c.limiter.AllowN(c.now(), 1) {
		return nil, errprocess.RateLimit("sending too quickly, wait %s between messages", c.policy.SendInterval)
	}

	clientMsgID := uuid.New().String()
	pending := domain.Message{
		ID:          domain.TempIDPrefix + clientMsgID,
		RoomID:      c.roomID,
		SenderID:    c.userID,
		Content:     domain.SanitizeContent(content),
		CreatedAt:   c.now().UTC(),
		ClientMsgID: clientMsgID,
		Status:      domain.MessagePending,
	}
	c.mu.Lock()
	c.pending = append(c.pending, pending)
	c.mu.Unlock()

	msg, err := c.appender.Append(ctx, c.roomID, content, clientMsgID)
	if err != nil {
		c.mu.Lock()
		c.removePendingLocked(pending.ID)
		c.mu.Unlock()
		logger.Log.Warn("send failed",
			zap.String("room_id", c.roomID),
			zap.String("kind", string(errprocess.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	// 事件可能比回應先到，兩邊都走同一個去重
	c.OnConfirmed(*msg)
	return msg, nil
}

// OnConfirmed reconcile a confirmed message; false when it was already visible
// or belongs to another room
func (c *Coordinator) OnConfirmed(msg domain.Message) bool {
	if msg.RoomID != c.roomID || strings.HasPrefix(msg.ID, domain.TempIDPrefix) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[msg.ID]; ok {
		return false
	}

	if msg.ClientMsgID != "" {
		for _, p := range c.pending {
			if p.ClientMsgID == msg.ClientMsgID {
				c.removePendingLocked(p.ID)
				break
			}
		}
	} else if msg.SenderID == c.userID {
		// 沒有 client id 時以 sender + content 配對最早的 pending
		for _, p := range c.pending {
			if p.SenderID == msg.SenderID && p.Content == msg.Content {
				c.removePendingLocked(p.ID)
				break
			}
		}
	}

	c.insertConfirmedLocked(msg)
	return true
}

// Run reconcile every message event of events until ctx is done or events closes
func (c *Coordinator) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == domain.EventMessage && ev.Message != nil {
				c.OnConfirmed(*ev.Message)
			}
		}
	}
}

// LoadInitial newest page of the room
func (c *Coordinator) LoadInitial(ctx context.Context) error {
	page, err := c.page(ctx, domain.PageCursor{})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergePageLocked(page)
	return nil
}

// LoadOlder next older page; false when there is nothing older
func (c *Coordinator) LoadOlder(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.loaded && !c.hasMore {
		c.mu.Unlock()
		return false, nil
	}
	var cursor domain.PageCursor
	if len(c.confirmed) > 0 {
		cursor.BeforeSeq = c.confirmed[0].Seq
	}
	c.mu.Unlock()

	page, err := c.page(ctx, cursor)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergePageLocked(page)
	return len(page.Messages) > 0, nil
}

// page reads are retried with backoff on transient errors, sends never are
func (c *Coordinator) page(ctx context.Context, cursor domain.PageCursor) (*domain.MessagePage, error) {
	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		page, err := c.pager.Page(ctx, c.roomID, cursor, c.policy.PageSize)
		if err == nil || !errprocess.IsRetryable(err) || attempt >= maxPageAttempts {
			return page, err
		}
		logger.Log.Warn("page failed, retrying",
			zap.String("room_id", c.roomID), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, errprocess.Transient("page cancelled", ctx.Err())
		}
		backoff *= 2
	}
}

// HasMore older history may exist
func (c *Coordinator) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.loaded || c.hasMore
}

// Messages visible list: confirmed in seq order, then pending in send order
func (c *Coordinator) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, 0, len(c.confirmed)+len(c.pending))
	out = append(out, c.confirmed...)
	out = append(out, c.pending...)
	return out
}

func (c *Coordinator) mergePageLocked(page *domain.MessagePage) {
	for _, m := range page.Messages {
		if _, ok := c.seen[m.ID]; ok {
			continue
		}
		c.insertConfirmedLocked(m)
	}
	// 只有最舊的一頁決定還有沒有更舊的
	if !c.loaded || len(page.Messages) == 0 || page.Messages[0].Seq <= c.confirmed[0].Seq {
		c.hasMore = page.HasMore
	}
	c.loaded = true
}

func (c *Coordinator) insertConfirmedLocked(msg domain.Message) {
	msg.Status = domain.MessageConfirmed
	i := sort.Search(len(c.confirmed), func(i int) bool { return c.confirmed[i].Seq > msg.Seq })
	c.confirmed = append(c.confirmed, domain.Message{})
	copy(c.confirmed[i+1:], c.confirmed[i:])
	c.confirmed[i] = msg
	c.seen[msg.ID] = struct{}{}
}

func (c *Coordinator) removePendingLocked(id string) {
	for i, p := range c.pending {
		if p.ID == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
