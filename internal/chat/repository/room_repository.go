package repository

import (
	"context"
	"errors"
	"time"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepository definition rooms and memberships store
type RoomRepository interface {
	AutoMigrate() error
	// CreateRoom 聊天室與所有成員在同一個交易內寫入
	CreateRoom(ctx context.Context, room *domain.Room, members []domain.Membership) error
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)
	FindDirectRoom(ctx context.Context, directKey string) (*domain.Room, error)
	// DeleteRoom 刪除聊天室與成員，訊息保留
	DeleteRoom(ctx context.Context, roomID string) error

	ListRoomsForUser(ctx context.Context, userID string) ([]domain.UserRoom, error)
	FindMembership(ctx context.Context, roomID, userID string) (*domain.Membership, error)
	ListMembers(ctx context.Context, roomID string) ([]domain.Membership, error)
	CountMembers(ctx context.Context, roomIDs []string) (map[string]int, error)
	// OtherMembers room id -> the member that is not userID
	OtherMembers(ctx context.Context, roomIDs []string, userID string) (map[string]string, error)
	// AddMembers insert memberships, existing members are skipped; returns inserted user ids
	AddMembers(ctx context.Context, roomID string, userIDs []string, at time.Time) ([]string, error)
	// DeleteMembership returns the member count left in the room
	DeleteMembership(ctx context.Context, roomID, userID string) (int64, error)

	SetAwaiting(ctx context.Context, roomID, userID string, value bool) error
	// MarkAwaiting set awaiting for members not yet awaiting that have not read past at; returns changed user ids
	MarkAwaiting(ctx context.Context, roomID string, userIDs []string, at time.Time) ([]string, error)
	MarkRead(ctx context.Context, roomID, userID string, at time.Time) error
}

type gormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository create RoomRepository
func NewGormRoomRepository(db *gorm.DB) RoomRepository {
	return &gormRoomRepository{db: db}
}

func (r *gormRoomRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Room{}, &domain.Membership{})
}

func (r *gormRoomRepository) CreateRoom(ctx context.Context, room *domain.Room, members []domain.Membership) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
	return translateGormErr("create room", err)
}

func (r *gormRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, translateGormErr("find room", err)
	}
	return &room, nil
}

func (r *gormRoomRepository) FindDirectRoom(ctx context.Context, directKey string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "direct_key = ?", directKey).Error; err != nil {
		return nil, translateGormErr("find direct room", err)
	}
	return &room, nil
}

func (r *gormRoomRepository) DeleteRoom(ctx context.Context, roomID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&domain.Membership{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", roomID).Delete(&domain.Room{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translateGormErr("delete room", err)
}

func (r *gormRoomRepository) ListRoomsForUser(ctx context.Context, userID string) ([]domain.UserRoom, error) {
	var rows []domain.UserRoom
	err := r.db.WithContext(ctx).
		Table("room_members AS m").
		Select("r.*, m.awaiting, m.last_read_at").
		Joins("JOIN chat_rooms AS r ON r.id = m.room_id").
		Where("m.user_id = ?", userID).
		Order("r.created_at DESC, r.id").
		Scan(&rows).Error
	if err != nil {
		return nil, translateGormErr("list rooms", err)
	}
	return rows, nil
}

func (r *gormRoomRepository) FindMembership(ctx context.Context, roomID, userID string) (*domain.Membership, error) {
	var m domain.Membership
	if err := r.db.WithContext(ctx).First(&m, "room_id = ? AND user_id = ?", roomID, userID).Error; err != nil {
		return nil, translateGormErr("find membership", err)
	}
	return &m, nil
}

func (r *gormRoomRepository) ListMembers(ctx context.Context, roomID string) ([]domain.Membership, error) {
	var members []domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at, user_id").
		Find(&members).Error
	if err != nil {
		return nil, translateGormErr("list members", err)
	}
	return members, nil
}

func (r *gormRoomRepository) CountMembers(ctx context.Context, roomIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		RoomID string
		Total  int
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Select("room_id, COUNT(*) AS total").
		Where("room_id IN ?", roomIDs).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translateGormErr("count members", err)
	}
	for _, row := range rows {
		counts[row.RoomID] = row.Total
	}
	return counts, nil
}

func (r *gormRoomRepository) OtherMembers(ctx context.Context, roomIDs []string, userID string) (map[string]string, error) {
	others := make(map[string]string, len(roomIDs))
	if len(roomIDs) == 0 {
		return others, nil
	}
	var rows []domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id IN ? AND user_id <> ?", roomIDs, userID).
		Find(&rows).Error
	if err != nil {
		return nil, translateGormErr("find other members", err)
	}
	for _, row := range rows {
		others[row.RoomID] = row.UserID
	}
	return others, nil
}

func (r *gormRoomRepository) AddMembers(ctx context.Context, roomID string, userIDs []string, at time.Time) ([]string, error) {
	var added []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		added = added[:0]
		seen := make(map[string]struct{}, len(userIDs))
		for _, id := range userIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			// 已是成員或併發加入時不會寫入，只回報實際新增的列
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&domain.Membership{RoomID: roomID, UserID: id, JoinedAt: at})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				added = append(added, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateGormErr("add members", err)
	}
	return added, nil
}

func (r *gormRoomRepository) DeleteMembership(ctx context.Context, roomID, userID string) (int64, error) {
	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&domain.Membership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&domain.Membership{}).Where("room_id = ?", roomID).Count(&remaining).Error
	})
	if err != nil {
		return 0, translateGormErr("delete membership", err)
	}
	return remaining, nil
}

func (r *gormRoomRepository) SetAwaiting(ctx context.Context, roomID, userID string, value bool) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("awaiting", value)
	if res.Error != nil {
		return translateGormErr("set awaiting", res.Error)
	}
	if res.RowsAffected == 0 {
		return errprocess.NotFound("membership %s/%s not found", roomID, userID)
	}
	return nil
}

func (r *gormRoomRepository) MarkAwaiting(ctx context.Context, roomID string, userIDs []string, at time.Time) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var changed []domain.Membership
	// last_read_at 晚於訊息時間代表已讀，不能被覆蓋
	err := r.db.WithContext(ctx).
		Model(&changed).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}}}).
		Where("room_id = ? AND user_id IN ? AND awaiting = ?", roomID, userIDs, false).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		Update("awaiting", true).Error
	if err != nil {
		return nil, translateGormErr("mark awaiting", err)
	}
	ids := make([]string, 0, len(changed))
	for _, m := range changed {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (r *gormRoomRepository) MarkRead(ctx context.Context, roomID, userID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{"awaiting": false, "last_read_at": at})
	if res.Error != nil {
		return translateGormErr("mark read", res.Error)
	}
	if res.RowsAffected == 0 {
		return errprocess.NotFound("membership %s/%s not found", roomID, userID)
	}
	return nil
}

func translateGormErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errprocess.NotFound("%s: not found", op)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &errprocess.Error{Kind: errprocess.KindConflict, Msg: op, Err: err}
	default:
		return errprocess.Transient(op, err)
	}
}
