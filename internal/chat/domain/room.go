package domain

import "time"

// Room definition chat room
type Room struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(100)" json:"name,omitempty"`
	IsGroup   bool      `gorm:"not null;default:false" json:"is_group"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	CreatedBy string    `gorm:"type:varchar(64);not null" json:"created_by"`
	// DirectKey 1對1 聊天室的無序成員對，唯一索引防止重複建立
	DirectKey *string `gorm:"type:varchar(140);uniqueIndex" json:"-"`
}

// TableName gorm table name
func (Room) TableName() string { return "chat_rooms" }

// Membership definition user in room
type Membership struct {
	RoomID     string     `gorm:"primaryKey;type:varchar(36)" json:"room_id"`
	UserID     string     `gorm:"primaryKey;type:varchar(64);index" json:"user_id"`
	Awaiting   bool       `gorm:"not null;default:false" json:"awaiting"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	JoinedAt   time.Time  `gorm:"not null" json:"joined_at"`
}

// TableName gorm table name
func (Membership) TableName() string { return "room_members" }

// UserRoom room joined with the requesting user's membership
type UserRoom struct {
	Room
	Awaiting   bool
	LastReadAt *time.Time
}

// RoomSummary enriched room for the room list
type RoomSummary struct {
	Room
	Awaiting      bool       `json:"awaiting"`
	MemberCount   int        `json:"member_count,omitempty"`
	OtherMember   *Profile   `json:"other_member_profile,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// DirectRoomKey unordered pair key, same for (a, b) and (b, a)
func DirectRoomKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// MembershipEventType definition membership change kind
type MembershipEventType string

const (
	// MembershipInsert user joined a room
	MembershipInsert MembershipEventType = "INSERT"
	// MembershipUpdate awaiting or last_read_at changed
	MembershipUpdate MembershipEventType = "UPDATE"
	// MembershipDelete user left or room deleted
	MembershipDelete MembershipEventType = "DELETE"
)

// RoomEvent membership change delivered on the user's room-event stream
type RoomEvent struct {
	Type     MembershipEventType `json:"type"`
	RoomID   string              `json:"room_id"`
	UserID   string              `json:"user_id"`
	Awaiting bool                `json:"awaiting"`
	At       time.Time           `json:"at"`
}
