package domain

import "time"

// MessageStatus client side lifecycle of a message
type MessageStatus string

const (
	// MessagePending optimistic entry waiting for the server
	MessagePending MessageStatus = "pending"
	// MessageConfirmed stored in the log
	MessageConfirmed MessageStatus = "confirmed"
	// MessageFailed append rejected, entry removed from the view
	MessageFailed MessageStatus = "failed"
)

// TempIDPrefix id prefix of pending messages
const TempIDPrefix = "temp-"

// Message 表示一則聊天訊息，寫入後不可變
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	RoomID    string    `bson:"room_id" json:"room_id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	// Seq 每個聊天室遞增的序號
	Seq         int64  `bson:"seq" json:"seq"`
	ClientMsgID string `bson:"client_msg_id,omitempty" json:"client_msg_id,omitempty"`

	Status MessageStatus `bson:"-" json:"status,omitempty"`
}

// IsPending temp entry not yet confirmed
func (m Message) IsPending() bool {
	return m.Status == MessagePending
}

// PageCursor strictly-older-than bound; Seq wins when both are set
type PageCursor struct {
	BeforeSeq int64      `json:"before_seq,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
}

// IsZero no cursor, newest page
func (c PageCursor) IsZero() bool {
	return c.BeforeSeq <= 0 && c.Before == nil
}

// MessagePage one page of history, oldest first
type MessagePage struct {
	Messages   []Message   `json:"messages"`
	HasMore    bool        `json:"has_more"`
	Limit      int         `json:"limit"`
	NextCursor *PageCursor `json:"next_cursor,omitempty"`
}
