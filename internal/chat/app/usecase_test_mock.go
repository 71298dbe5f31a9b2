package app

import (
	"context"
	"time"

	"realtime_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// AutoMigrate mock migrate
func (m *MockRoomRepository) AutoMigrate() error {
	return m.Called().Error(0)
}

// CreateRoom mock create room
func (m *MockRoomRepository) CreateRoom(ctx context.Context, room *domain.Room, members []domain.Membership) error {
	args := m.Called(ctx, room, members)
	return args.Error(0)
}

// FindByID mock find room
func (m *MockRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

// FindDirectRoom mock find direct room
func (m *MockRoomRepository) FindDirectRoom(ctx context.Context, directKey string) (*domain.Room, error) {
	args := m.Called(ctx, directKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

// DeleteRoom mock delete room
func (m *MockRoomRepository) DeleteRoom(ctx context.Context, roomID string) error {
	return m.Called(ctx, roomID).Error(0)
}

// ListRoomsForUser mock list rooms
func (m *MockRoomRepository) ListRoomsForUser(ctx context.Context, userID string) ([]domain.UserRoom, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UserRoom), args.Error(1)
}

// FindMembership mock find membership
func (m *MockRoomRepository) FindMembership(ctx context.Context, roomID, userID string) (*domain.Membership, error) {
	args := m.Called(ctx, roomID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}

// ListMembers mock list members
func (m *MockRoomRepository) ListMembers(ctx context.Context, roomID string) ([]domain.Membership, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Membership), args.Error(1)
}

// CountMembers mock count members
func (m *MockRoomRepository) CountMembers(ctx context.Context, roomIDs []string) (map[string]int, error) {
	args := m.Called(ctx, roomIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// OtherMembers mock other members
func (m *MockRoomRepository) OtherMembers(ctx context.Context, roomIDs []string, userID string) (map[string]string, error) {
	args := m.Called(ctx, roomIDs, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// AddMembers mock add members
func (m *MockRoomRepository) AddMembers(ctx context.Context, roomID string, userIDs []string, at time.Time) ([]string, error) {
	args := m.Called(ctx, roomID, userIDs, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// DeleteMembership mock leave
func (m *MockRoomRepository) DeleteMembership(ctx context.Context, roomID, userID string) (int64, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// SetAwaiting mock set awaiting
func (m *MockRoomRepository) SetAwaiting(ctx context.Context, roomID, userID string, value bool) error {
	return m.Called(ctx, roomID, userID, value).Error(0)
}

// MarkAwaiting mock mark awaiting
func (m *MockRoomRepository) MarkAwaiting(ctx context.Context, roomID string, userIDs []string, at time.Time) ([]string, error) {
	args := m.Called(ctx, roomID, userIDs, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MarkRead mock mark read
func (m *MockRoomRepository) MarkRead(ctx context.Context, roomID, userID string, at time.Time) error {
	return m.Called(ctx, roomID, userID, at).Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// EnsureIndexes mock indexes
func (m *MockMessageRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// NextSequence mock sequence
func (m *MockMessageRepository) NextSequence(ctx context.Context, roomID string) (int64, error) {
	args := m.Called(ctx, roomID)
	if fn, ok := args.Get(0).(func(context.Context, string) int64); ok {
		return fn(ctx, roomID), args.Error(1)
	}
	return args.Get(0).(int64), args.Error(1)
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// FindByID mock find message
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// FindByClientMsgID mock find by client id
func (m *MockMessageRepository) FindByClientMsgID(ctx context.Context, roomID, senderID, clientMsgID string) (*domain.Message, error) {
	args := m.Called(ctx, roomID, senderID, clientMsgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// FindBefore mock page
func (m *MockMessageRepository) FindBefore(ctx context.Context, roomID string, cursor domain.PageCursor, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

// LatestByRooms mock latest message time
func (m *MockMessageRepository) LatestByRooms(ctx context.Context, roomIDs []string) (map[string]time.Time, error) {
	args := m.Called(ctx, roomIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]time.Time), args.Error(1)
}

// MockProfileRepository Mock ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

// Migrate mock migrate
func (m *MockProfileRepository) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// FindByID mock find profile
func (m *MockProfileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

// FindByIDs mock find profiles
func (m *MockProfileRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Profile), args.Error(1)
}

// List mock directory
func (m *MockProfileRepository) List(ctx context.Context, query domain.ProfileQuery) ([]domain.Profile, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Profile), args.Error(1)
}

// UpdateLastSeen mock heartbeat write
func (m *MockProfileRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// UpdateProfile mock profile update
func (m *MockProfileRepository) UpdateProfile(ctx context.Context, id string, username, avatarURL *string) (*domain.Profile, error) {
	args := m.Called(ctx, id, username, avatarURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

// MockHeartbeatGate Mock HeartbeatGate
type MockHeartbeatGate struct {
	mock.Mock
}

// Acquire mock gate
func (m *MockHeartbeatGate) Acquire(ctx context.Context, userID string, at time.Time, interval time.Duration) (bool, error) {
	args := m.Called(ctx, userID, at, interval)
	return args.Bool(0), args.Error(1)
}

// MockPublisher records published events
type MockPublisher struct {
	mock.Mock
}

// Publish mock publish
func (m *MockPublisher) Publish(ctx context.Context, ev domain.Event) {
	m.Called(ctx, ev)
}

// MockSendGate Mock SendGate
type MockSendGate struct {
	mock.Mock
}

// Acquire mock take a send slot
func (m *MockSendGate) Acquire(ctx context.Context, senderID string, at time.Time, interval time.Duration) (bool, error) {
	args := m.Called(ctx, senderID, at, interval)
	return args.Bool(0), args.Error(1)
}

// Release mock give back a send slot
func (m *MockSendGate) Release(ctx context.Context, senderID string) error {
	return m.Called(ctx, senderID).Error(0)
}
