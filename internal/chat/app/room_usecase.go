package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"realtime_chat_service/internal/chat/domain"
	"realtime_chat_service/internal/chat/repository"
	"realtime_chat_service/pkg"
	"realtime_chat_service/pkg/config"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomUseCase - 聊天室與成員管理 (群組或 1對1)
type RoomUseCase struct {
	roomRepo    repository.RoomRepository
	profileRepo repository.ProfileRepository
	msgRepo     repository.MessageRepository
	pub         Publisher
	policy      config.Policy
	now         func() time.Time
}

// NewRoomUseCase init room use case
func NewRoomUseCase(
	roomRepo repository.RoomRepository,
	profileRepo repository.ProfileRepository,
	msgRepo repository.MessageRepository,
	pub Publisher,
	policy config.Policy,
) *RoomUseCase {
	return &RoomUseCase{
		roomRepo:    roomRepo,
		profileRepo: profileRepo,
		msgRepo:     msgRepo,
		pub:         pub,
		policy:      policy.WithDefaults(),
		now:         time.Now,
	}
}

// ListRooms rooms of userID, enriched, newest created first (or latest activity)
func (uc *RoomUseCase) ListRooms(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rows, err := uc.roomRepo.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries, err := uc.enrich(ctx, userID, rows)
	if err != nil {
		return nil, err
	}

	if uc.policy.RoomOrder == config.RoomOrderActivity {
		ids := make([]string, 0, len(summaries))
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
		latest, err := uc.msgRepo.LatestByRooms(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range summaries {
			if t, ok := latest[summaries[i].ID]; ok {
				summaries[i].LastMessageAt = &t
			}
		}
	}
	sortSummaries(summaries, uc.policy.RoomOrder)
	return summaries, nil
}

// GetRoom one enriched room, requester must be a member
func (uc *RoomUseCase) GetRoom(ctx context.Context, roomID, userID string) (*domain.RoomSummary, error) {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m, err := uc.membershipOf(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	summaries, err := uc.enrich(ctx, userID, []domain.UserRoom{{Room: *room, Awaiting: m.Awaiting, LastReadAt: m.LastReadAt}})
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

func (uc *RoomUseCase) enrich(ctx context.Context, userID string, rows []domain.UserRoom) ([]domain.RoomSummary, error) {
	var groupIDs, directIDs []string
	for _, r := range rows {
		if r.IsGroup {
			groupIDs = append(groupIDs, r.ID)
		} else {
			directIDs = append(directIDs, r.ID)
		}
	}

	counts, err := uc.roomRepo.CountMembers(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	others, err := uc.roomRepo.OtherMembers(ctx, directIDs, userID)
	if err != nil {
		return nil, err
	}
	otherIDs := make([]string, 0, len(others))
	for _, id := range others {
		otherIDs = append(otherIDs, id)
	}
	profiles, err := uc.profileRepo.FindByIDs(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.RoomSummary, 0, len(rows))
	for _, r := range rows {
		s := domain.RoomSummary{Room: r.Room, Awaiting: r.Awaiting}
		if r.IsGroup {
			s.MemberCount = counts[r.ID]
		} else if otherID, ok := others[r.ID]; ok {
			if p, ok := profiles[otherID]; ok {
				s.OtherMember = &p
			} else {
				s.OtherMember = &domain.Profile{ID: otherID}
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func sortSummaries(s []domain.RoomSummary, order config.RoomOrder) {
	key := func(r domain.RoomSummary) time.Time {
		if order == config.RoomOrderActivity && r.LastMessageAt != nil && r.LastMessageAt.After(r.CreatedAt) {
			return *r.LastMessageAt
		}
		return r.CreatedAt
	}
	sort.SliceStable(s, func(i, j int) bool {
		ki, kj := key(s[i]), key(s[j])
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return s[i].ID < s[j].ID
	})
}

// CreateDirectRoom get or create the 1對1 room of the unordered pair
func (uc *RoomUseCase) CreateDirectRoom(ctx context.Context, userID, otherUserID string) (*domain.Room, error) {
	if userID == "" || otherUserID == "" {
		return nil, errprocess.Validation("both users are required")
	}
	if userID == otherUserID {
		return nil, errprocess.Validation("cannot open a direct room with yourself")
	}

	key := domain.DirectRoomKey(userID, otherUserID)
	room, err := uc.roomRepo.FindDirectRoom(ctx, key)
	if err == nil {
		return room, nil
	}
	if errprocess.KindOf(err) != errprocess.KindNotFound {
		return nil, err
	}

	if _, err := uc.profileRepo.FindByID(ctx, otherUserID); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	room = &domain.Room{
		ID:        uuid.New().String(),
		IsGroup:   false,
		CreatedAt: now,
		CreatedBy: userID,
		DirectKey: &key,
	}
	members := []domain.Membership{
		{RoomID: room.ID, UserID: userID, JoinedAt: now},
		{RoomID: room.ID, UserID: otherUserID, JoinedAt: now},
	}
	if err := uc.roomRepo.CreateRoom(ctx, room, members); err != nil {
		if errprocess.KindOf(err) == errprocess.KindConflict {
			// 同時建立，回傳先寫入的聊天室
			return uc.roomRepo.FindDirectRoom(ctx, key)
		}
		return nil, err
	}

	uc.publishMembership(ctx, domain.MembershipInsert, room.ID, now, userID, otherUserID)
	return room, nil
}

// CreateGroupRoom create group with creator plus selected members, atomically
func (uc *RoomUseCase) CreateGroupRoom(ctx context.Context, userID, name string, memberIDs []string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errprocess.Validation("group name is required")
	}
	selected := uniqueIDs(memberIDs, userID)
	if len(selected) == 0 {
		return nil, errprocess.Validation("select at least one member")
	}

	now := uc.now().UTC()
	room := &domain.Room{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   true,
		CreatedAt: now,
		CreatedBy: userID,
	}
	all := append([]string{userID}, selected...)
	members := make([]domain.Membership, 0, len(all))
	for _, id := range all {
		members = append(members, domain.Membership{RoomID: room.ID, UserID: id, JoinedAt: now})
	}
	if err := uc.roomRepo.CreateRoom(ctx, room, members); err != nil {
		return nil, err
	}

	uc.publishMembership(ctx, domain.MembershipInsert, room.ID, now, all...)
	return room, nil
}

// AddMembers add users to a group, existing members are skipped; returns the added ids
func (uc *RoomUseCase) AddMembers(ctx context.Context, roomID, requesterID string, memberIDs []string) ([]string, error) {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsGroup {
		return nil, errprocess.Validation("members can only be added to group rooms")
	}
	if _, err := uc.membershipOf(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	ids := uniqueIDs(memberIDs, "")
	if len(ids) == 0 {
		return nil, errprocess.Validation("select at least one member")
	}

	now := uc.now().UTC()
	added, err := uc.roomRepo.AddMembers(ctx, roomID, ids, now)
	if err != nil {
		return nil, err
	}
	uc.publishMembership(ctx, domain.MembershipInsert, roomID, now, added...)
	return added, nil
}

// RemoveMember userID leaves roomID, the last member leaving deletes the room
func (uc *RoomUseCase) RemoveMember(ctx context.Context, roomID, userID string) error {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsGroup {
		return errprocess.Validation("direct rooms cannot be left, delete the room instead")
	}

	remaining, err := uc.roomRepo.DeleteMembership(ctx, roomID, userID)
	if err != nil {
		return err
	}
	now := uc.now().UTC()
	uc.publishMembership(ctx, domain.MembershipDelete, roomID, now, userID)

	if remaining == 0 {
		if err := uc.roomRepo.DeleteRoom(ctx, roomID); err != nil && errprocess.KindOf(err) != errprocess.KindNotFound {
			logger.Log.Error("delete empty room err", zap.String("room_id", roomID), zap.Error(err))
		}
	}
	return nil
}

// DeleteRoom only the creator may delete
func (uc *RoomUseCase) DeleteRoom(ctx context.Context, roomID, requesterID string) error {
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != requesterID {
		return errprocess.Permission("only the creator can delete this room")
	}
	members, err := uc.roomRepo.ListMembers(ctx, roomID)
	if err != nil {
		return err
	}
	if err := uc.roomRepo.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	uc.publishMembership(ctx, domain.MembershipDelete, roomID, uc.now().UTC(), ids...)
	return nil
}

// SetAwaiting set the membership flag directly
func (uc *RoomUseCase) SetAwaiting(ctx context.Context, roomID, userID string, value bool) error {
	if err := uc.roomRepo.SetAwaiting(ctx, roomID, userID, value); err != nil {
		return err
	}
	uc.pub.Publish(ctx, domain.NewMembershipEvent(domain.RoomEvent{
		Type: domain.MembershipUpdate, RoomID: roomID, UserID: userID, Awaiting: value, At: uc.now().UTC(),
	}))
	return nil
}

// MarkRead clear awaiting and record last_read_at = now
func (uc *RoomUseCase) MarkRead(ctx context.Context, roomID, userID string) error {
	now := uc.now().UTC()
	if err := uc.roomRepo.MarkRead(ctx, roomID, userID, now); err != nil {
		return err
	}
	uc.pub.Publish(ctx, domain.NewMembershipEvent(domain.RoomEvent{
		Type: domain.MembershipUpdate, RoomID: roomID, UserID: userID, Awaiting: false, At: now,
	}))
	return nil
}

// MemberIDs user ids of roomID, requester must be a member
func (uc *RoomUseCase) MemberIDs(ctx context.Context, roomID, requesterID string) ([]string, error) {
	members, err := uc.roomRepo.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	if !pkg.Contains(ids, requesterID) {
		return nil, errprocess.Permission("not a member of room %s", roomID)
	}
	return ids, nil
}

// membershipOf NotFound on the membership maps to PermissionError
func (uc *RoomUseCase) membershipOf(ctx context.Context, roomID, userID string) (*domain.Membership, error) {
	m, err := uc.roomRepo.FindMembership(ctx, roomID, userID)
	if err != nil {
		if errprocess.KindOf(err) == errprocess.KindNotFound {
			return nil, errprocess.Permission("not a member of room %s", roomID)
		}
		return nil, err
	}
	return m, nil
}

func (uc *RoomUseCase) publishMembership(ctx context.Context, t domain.MembershipEventType, roomID string, at time.Time, userIDs ...string) {
	for _, id := range userIDs {
		uc.pub.Publish(ctx, domain.NewMembershipEvent(domain.RoomEvent{Type: t, RoomID: roomID, UserID: id, At: at}))
	}
}

// uniqueIDs drop blanks, duplicates and exclude
func uniqueIDs(ids []string, exclude string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
