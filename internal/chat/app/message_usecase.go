package app

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/pkg/config"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const seqStripes = 64

// MessageUseCase 負責訊息寫入、分頁與 awaiting 更新
type MessageUseCase struct {
	roomRepo    repository.RoomRepository
	msgRepo     repository.MessageRepository
	profileRepo repository.ProfileRepository
	hub         *Hub
	limiter     *SendLimiter
	policy      config.Policy
	now         func() time.Time

	// seqLocks keep allocation and hub reservation of one room in seq order
	seqLocks [seqStripes]sync.Mutex
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	profileRepo repository.ProfileRepository,
	hub *Hub,
	limiter *SendLimiter,
	policy config.Policy,
) *MessageUseCase {
	policy = policy.WithDefaults()
	if limiter == nil {
		limiter = NewSendLimiter(policy.SendInterval, nil)
	}
	return &MessageUseCase{
		roomRepo:    roomRepo,
		msgRepo:     msgRepo,
		profileRepo: profileRepo,
		hub:         hub,
		limiter:     limiter,
		policy:      policy,
		now:         time.Now,
	}
}

// AppendRequest one send
type AppendRequest struct {
	RoomID      string
	SenderID    string
	Content     string
	ClientMsgID string
}

// Append validate, store, update awaiting flags and fan the message out
func (uc *MessageUseCase) Append(ctx context.Context, req AppendRequest) (*domain.Message, error) {
	msg, err := uc.append(ctx, req)
	if err != nil {
		sendsRejected.WithLabelValues(string(errprocess.KindOf(err))).Inc()
		return nil, err
	}
	return msg, nil
}

func (uc *MessageUseCase) append(ctx context.Context, req AppendRequest) (*domain.Message, error) {
	// 長度以原始輸入計算，前後空白也算
	if n := utf8.RuneCountInString(req.Content); n > uc.policy.MaxContentLength {
		return nil, errprocess.Validation("message too long: %d > %d characters", n, uc.policy.MaxContentLength)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errprocess.Validation("message content cannot be empty")
	}

	room, err := uc.roomRepo.FindByID(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	members, err := uc.roomRepo.ListMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if !hasMember(members, req.SenderID) {
		return nil, errprocess.Permission("sender is not a member of room %s", room.ID)
	}

	if req.ClientMsgID != "" {
		existing, err := uc.msgRepo.FindByClientMsgID(ctx, room.ID, req.SenderID, req.ClientMsgID)
		if err == nil {
			return existing, nil
		}
		if errprocess.KindOf(err) != errprocess.KindNotFound {
			return nil, err
		}
	}

	now := uc.now()
	if !uc.limiter.Allow(ctx, req.SenderID, now) {
		return nil, errprocess.RateLimit("sending too quickly, wait %s between messages", uc.policy.SendInterval)
	}

	msg, err := uc.store(ctx, room.ID, req, content, now)
	if err != nil {
		// 沒有存下來的訊息不占用發送名額
		uc.limiter.Release(ctx, req.SenderID)
		if errprocess.KindOf(err) == errprocess.KindConflict && req.ClientMsgID != "" {
			// 同一 client_msg_id 併發重送
			return uc.msgRepo.FindByClientMsgID(ctx, room.ID, req.SenderID, req.ClientMsgID)
		}
		return nil, err
	}
	messagesAppended.Inc()

	uc.hub.Publish(ctx, domain.NewMessageEvent(*msg))
	uc.markRecipientsAwaiting(ctx, room, members, msg)
	return msg, nil
}

func (uc *MessageUseCase) seqLock(roomID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &uc.seqLocks[h.Sum32()%seqStripes]
}

// store allocate the next seq and insert, a seq that is not stored is skipped on the hub
func (uc *MessageUseCase) store(ctx context.Context, roomID string, req AppendRequest, content string, now time.Time) (*domain.Message, error) {
	lock := uc.seqLock(roomID)
	lock.Lock()
	seq, err := uc.msgRepo.NextSequence(ctx, roomID)
	if err == nil {
		uc.hub.Reserve(roomID, seq)
	}
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    req.SenderID,
		Content:     domain.SanitizeContent(content),
		CreatedAt:   now.UTC().Truncate(time.Millisecond),
		Seq:         seq,
		ClientMsgID: req.ClientMsgID,
	}
	insertCtx, cancel := context.WithTimeout(ctx, uc.policy.RequestTimeout)
	defer cancel()
	if err := uc.msgRepo.Insert(insertCtx, msg); err != nil {
		uc.hub.Skip(ctx, roomID, seq)
		if errors.Is(insertCtx.Err(), context.DeadlineExceeded) && errprocess.KindOf(err) != errprocess.KindConflict {
			return nil, errprocess.Transient("insert message timed out", insertCtx.Err())
		}
		return nil, err
	}
	return msg, nil
}

// markRecipientsAwaiting group: offline recipients only; direct: the other member always.
// failures are logged, the message is already stored
func (uc *MessageUseCase) markRecipientsAwaiting(ctx context.Context, room *domain.Room, members []domain.Membership, msg *domain.Message) {
	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != msg.SenderID {
			recipients = append(recipients, m.UserID)
		}
	}
	if len(recipients) == 0 {
		return
	}

	if room.IsGroup {
		profiles, err := uc.profileRepo.FindByIDs(ctx, recipients)
		if err != nil {
			logger.Log.Error("Failed to set awaiting", zap.String("room_id", room.ID), zap.Error(err))
			return
		}
		offline := make([]string, 0, len(recipients))
		for _, id := range recipients {
			p, ok := profiles[id]
			if !ok || !domain.IsOnline(p.LastSeen, msg.CreatedAt, uc.policy.OnlineWindow) {
				offline = append(offline, id)
			}
		}
		recipients = offline
	}
	if len(recipients) == 0 {
		return
	}

	changed, err := uc.roomRepo.MarkAwaiting(ctx, room.ID, recipients, msg.CreatedAt)
	if err != nil {
		logger.Log.Error("Failed to set awaiting", zap.String("room_id", room.ID), zap.Error(err))
		return
	}
	for _, id := range changed {
		uc.hub.Publish(ctx, domain.NewMembershipEvent(domain.RoomEvent{
			Type: domain.MembershipUpdate, RoomID: room.ID, UserID: id, Awaiting: true, At: msg.CreatedAt,
		}))
	}
}

// Page strictly older than cursor, oldest first; hasMore iff the page is full
func (uc *MessageUseCase) Page(ctx context.Context, roomID, requesterID string, cursor domain.PageCursor, limit int) (*domain.MessagePage, error) {
	if limit <= 0 {
		limit = uc.policy.PageSize
	}
	if limit > uc.policy.MaxPageSize {
		limit = uc.policy.MaxPageSize
	}
	if err := uc.requireMember(ctx, roomID, requesterID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, uc.policy.RequestTimeout)
	defer cancel()
	msgs, err := uc.msgRepo.FindBefore(ctx, roomID, cursor, limit)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errprocess.Transient("page timed out", ctx.Err())
		}
		return nil, err
	}

	// newest first -> oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	page := &domain.MessagePage{
		Messages: msgs,
		HasMore:  len(msgs) == limit,
		Limit:    limit,
	}
	if page.HasMore {
		page.NextCursor = &domain.PageCursor{BeforeSeq: msgs[0].Seq}
	}
	return page, nil
}

// GetByID one message, requester must be a member of its room
func (uc *MessageUseCase) GetByID(ctx context.Context, messageID, requesterID string) (*domain.Message, error) {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := uc.requireMember(ctx, msg.RoomID, requesterID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (uc *MessageUseCase) requireMember(ctx context.Context, roomID, userID string) error {
	if _, err := uc.roomRepo.FindMembership(ctx, roomID, userID); err != nil {
		if errprocess.KindOf(err) == errprocess.KindNotFound {
			return errprocess.Permission("not a member of room %s", roomID)
		}
		return err
	}
	return nil
}

func hasMember(members []domain.Membership, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
