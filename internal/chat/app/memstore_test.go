package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"
)

// in-memory repositories used by the scenario tests

type memRoomRepo struct {
	mu      sync.Mutex
	rooms   map[string]domain.Room
	members map[string]map[string]domain.Membership
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{
		rooms:   make(map[string]domain.Room),
		members: make(map[string]map[string]domain.Membership),
	}
}

func (r *memRoomRepo) AutoMigrate() error { return nil }

func (r *memRoomRepo) CreateRoom(_ context.Context, room *domain.Room, members []domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room.DirectKey != nil {
		for _, existing := range r.rooms {
			if existing.DirectKey != nil && *existing.DirectKey == *room.DirectKey {
				return errprocess.Conflict("duplicate direct room %s", *room.DirectKey)
			}
		}
	}
	r.rooms[room.ID] = *room
	r.members[room.ID] = make(map[string]domain.Membership)
	for _, m := range members {
		r.members[room.ID][m.UserID] = m
	}
	return nil
}

func (r *memRoomRepo) FindByID(_ context.Context, roomID string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errprocess.NotFound("room %s not found", roomID)
	}
	return &room, nil
}

func (r *memRoomRepo) FindDirectRoom(_ context.Context, key string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.DirectKey != nil && *room.DirectKey == key {
			return &room, nil
		}
	}
	return nil, errprocess.NotFound("direct room %s not found", key)
}

func (r *memRoomRepo) DeleteRoom(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		return errprocess.NotFound("room %s not found", roomID)
	}
	delete(r.rooms, roomID)
	delete(r.members, roomID)
	return nil
}

func (r *memRoomRepo) ListRoomsForUser(_ context.Context, userID string) ([]domain.UserRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UserRoom
	for id, ms := range r.members {
		if m, ok := ms[userID]; ok {
			out = append(out, domain.UserRoom{Room: r.rooms[id], Awaiting: m.Awaiting, LastReadAt: m.LastReadAt})
		}
	}
	return out, nil
}

func (r *memRoomRepo) FindMembership(_ context.Context, roomID, userID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[roomID][userID]
	if !ok {
		return nil, errprocess.NotFound("membership %s/%s not found", roomID, userID)
	}
	return &m, nil
}

func (r *memRoomRepo) ListMembers(_ context.Context, roomID string) ([]domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Membership, 0, len(r.members[roomID]))
	for _, m := range r.members[roomID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *memRoomRepo) CountMembers(_ context.Context, roomIDs []string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(roomIDs))
	for _, id := range roomIDs {
		out[id] = len(r.members[id])
	}
	return out, nil
}

func (r *memRoomRepo) OtherMembers(_ context.Context, roomIDs []string, userID string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(roomIDs))
	for _, id := range roomIDs {
		for uid := range r.members[id] {
			if uid != userID {
				out[id] = uid
			}
		}
	}
	return out, nil
}

func (r *memRoomRepo) AddMembers(_ context.Context, roomID string, userIDs []string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var added []string
	for _, id := range userIDs {
		if _, ok := r.members[roomID][id]; ok {
			continue
		}
		r.members[roomID][id] = domain.Membership{RoomID: roomID, UserID: id, JoinedAt: at}
		added = append(added, id)
	}
	return added, nil
}

func (r *memRoomRepo) DeleteMembership(_ context.Context, roomID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[roomID][userID]; !ok {
		return 0, errprocess.NotFound("membership %s/%s not found", roomID, userID)
	}
	delete(r.members[roomID], userID)
	return int64(len(r.members[roomID])), nil
}

func (r *memRoomRepo) SetAwaiting(_ context.Context, roomID, userID string, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[roomID][userID]
	if !ok {
		return errprocess.NotFound("membership %s/%s not found", roomID, userID)
	}
	m.Awaiting = value
	r.members[roomID][userID] = m
	return nil
}

func (r *memRoomRepo) MarkAwaiting(_ context.Context, roomID string, userIDs []string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed []string
	for _, id := range userIDs {
		m, ok := r.members[roomID][id]
		if !ok || m.Awaiting || (m.LastReadAt != nil && !m.LastReadAt.Before(at)) {
			continue
		}
		m.Awaiting = true
		r.members[roomID][id] = m
		changed = append(changed, id)
	}
	return changed, nil
}

func (r *memRoomRepo) MarkRead(_ context.Context, roomID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[roomID][userID]
	if !ok {
		return errprocess.NotFound("membership %s/%s not found", roomID, userID)
	}
	m.Awaiting = false
	m.LastReadAt = &at
	r.members[roomID][userID] = m
	return nil
}

type memMessageRepo struct {
	mu   sync.Mutex
	msgs []domain.Message
	seq  map[string]int64

	// insertDelay slow down Insert per seq, set before use
	insertDelay func(seq int64) time.Duration
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{seq: make(map[string]int64)}
}

func (r *memMessageRepo) EnsureIndexes(context.Context) error { return nil }

func (r *memMessageRepo) NextSequence(_ context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[roomID]++
	return r.seq[roomID], nil
}

func (r *memMessageRepo) Insert(_ context.Context, msg *domain.Message) error {
	if r.insertDelay != nil {
		time.Sleep(r.insertDelay(msg.Seq))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *memMessageRepo) FindByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, errprocess.NotFound("message %s not found", id)
}

func (r *memMessageRepo) FindByClientMsgID(_ context.Context, roomID, senderID, clientMsgID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.RoomID == roomID && m.SenderID == senderID && m.ClientMsgID == clientMsgID {
			return &m, nil
		}
	}
	return nil, errprocess.NotFound("message %s not found", clientMsgID)
}

func (r *memMessageRepo) FindBefore(_ context.Context, roomID string, cursor domain.PageCursor, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.msgs {
		if m.RoomID != roomID {
			continue
		}
		if cursor.BeforeSeq > 0 && m.Seq >= cursor.BeforeSeq {
			continue
		}
		if cursor.BeforeSeq <= 0 && cursor.Before != nil && !m.CreatedAt.Before(*cursor.Before) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memMessageRepo) LatestByRooms(_ context.Context, roomIDs []string) (map[string]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time)
	for _, m := range r.msgs {
		if t, ok := out[m.RoomID]; !ok || m.CreatedAt.After(t) {
			out[m.RoomID] = m.CreatedAt
		}
	}
	return out, nil
}

func (r *memMessageRepo) last() domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	writes   int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]domain.Profile)}
}

func (r *memProfileRepo) Migrate(context.Context) error { return nil }

func (r *memProfileRepo) FindByID(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, errprocess.NotFound("profile %s not found", id)
	}
	return &p, nil
}

func (r *memProfileRepo) FindByIDs(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *memProfileRepo) List(_ context.Context, q domain.ProfileQuery) ([]domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exclude := make(map[string]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		exclude[id] = true
	}
	var out []domain.Profile
	for _, p := range r.profiles {
		if exclude[p.ID] || !strings.Contains(strings.ToLower(p.Username), strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *memProfileRepo) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return errprocess.NotFound("profile %s not found", id)
	}
	p.LastSeen = &at
	r.profiles[id] = p
	r.writes++
	return nil
}

func (r *memProfileRepo) UpdateProfile(_ context.Context, id string, username, avatarURL *string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, errprocess.NotFound("profile %s not found", id)
	}
	if username != nil {
		p.Username = *username
	}
	if avatarURL != nil {
		p.AvatarURL = avatarURL
	}
	r.profiles[id] = p
	return &p, nil
}

func (r *memProfileRepo) put(p domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
}

type memHeartbeatGate struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newMemHeartbeatGate() *memHeartbeatGate {
	return &memHeartbeatGate{last: make(map[string]time.Time)}
}

func (g *memHeartbeatGate) Acquire(_ context.Context, userID string, at time.Time, interval time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[userID]; ok && at.Sub(last) < interval {
		return false, nil
	}
	g.last[userID] = at
	return true, nil
}
