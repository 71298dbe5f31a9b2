package domain

import "time"

// Action websocket request action
type Action string

const (
	// ListRooms websocket action list_rooms
	ListRooms Action = "list_rooms"
	// GetRoom websocket action get_room
	GetRoom Action = "get_room"
	// CreateDirect websocket action create_direct
	CreateDirect Action = "create_direct"
	// CreateGroup websocket action create_group
	CreateGroup Action = "create_group"
	// AddMembers websocket action add_members
	AddMembers Action = "add_members"
	// LeaveRoom websocket action leave_room
	LeaveRoom Action = "leave_room"
	// DeleteRoom websocket action delete_room
	DeleteRoom Action = "delete_room"
	// MarkRead websocket action mark_read
	MarkRead Action = "mark_read"

	// EnterRoom websocket action enter_room, subscribe messages and load first page
	EnterRoom Action = "enter_room"
	// ExitView websocket action exit_view
	ExitView Action = "exit_view"
	// LoadOlder websocket action load_older
	LoadOlder Action = "load_older"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"

	// Heartbeat websocket action heartbeat
	Heartbeat Action = "heartbeat"
	// ListUsers websocket action list_users
	ListUsers Action = "list_users"
	// UpdateProfile websocket action update_profile
	UpdateProfile Action = "update_profile"

	// NotifyRoomEvent server push, membership change
	NotifyRoomEvent Action = "room_event"
	// NotifyMessageEvent server push, new message
	NotifyMessageEvent Action = "message_event"
)

// WSRequest websocket Request
type WSRequest struct {
	Action      string     `json:"action"`
	RequestID   string     `json:"request_id,omitempty"`
	RoomID      string     `json:"room_id,omitempty"`
	OtherUserID string     `json:"other_user_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	MemberIDs   []string   `json:"member_ids,omitempty"`
	Content     string     `json:"content,omitempty"`
	ClientMsgID string     `json:"client_msg_id,omitempty"`
	BeforeSeq   int64      `json:"before_seq,omitempty"`
	Before      *time.Time `json:"before,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Query       string     `json:"query,omitempty"`
	ExcludeRoom string     `json:"exclude_room_id,omitempty"`
	Username    *string    `json:"username,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
}

// Cursor page cursor carried by the request
func (r WSRequest) Cursor() PageCursor {
	return PageCursor{BeforeSeq: r.BeforeSeq, Before: r.Before}
}

// WSResponse websocket Response
type WSResponse struct {
	Action    string      `json:"action"`
	RequestID string      `json:"request_id,omitempty"`
	Success   bool        `json:"success"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}
