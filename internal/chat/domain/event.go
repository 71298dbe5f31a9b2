package domain

import "strings"

// EventKind definition hub event kind
type EventKind string

const (
	// EventMessage a message was appended to a room
	EventMessage EventKind = "message"
	// EventMembership a membership of the topic's user changed
	EventMembership EventKind = "membership"
	// EventSkip a sequence number that will never carry a message
	EventSkip EventKind = "skip"
)

const (
	roomTopicPrefix = "chat:room:"
	userTopicPrefix = "chat:user:"
	// TopicPattern every hub topic, used by the redis bridge
	TopicPattern = "chat:*"
)

// Event definition one item on a hub topic
type Event struct {
	Topic      string     `json:"topic"`
	Kind       EventKind  `json:"kind"`
	Seq        int64      `json:"seq,omitempty"`
	Message    *Message   `json:"message,omitempty"`
	Membership *RoomEvent `json:"membership,omitempty"`
	// Origin node that published the event
	Origin string `json:"origin,omitempty"`
}

// RoomTopic message-event topic of a room
func RoomTopic(roomID string) string { return roomTopicPrefix + roomID }

// UserTopic room-event topic of a user
func UserTopic(userID string) string { return userTopicPrefix + userID }

// IsRoomTopic topic carries sequenced message events
func IsRoomTopic(topic string) bool { return strings.HasPrefix(topic, roomTopicPrefix) }

// NewMessageEvent build the event for an appended message
func NewMessageEvent(msg Message) Event {
	return Event{Topic: RoomTopic(msg.RoomID), Kind: EventMessage, Seq: msg.Seq, Message: &msg}
}

// NewSkipEvent mark seq of roomID as never delivered
func NewSkipEvent(roomID string, seq int64) Event {
	return Event{Topic: RoomTopic(roomID), Kind: EventSkip, Seq: seq}
}

// NewMembershipEvent build the event for a membership change
func NewMembershipEvent(ev RoomEvent) Event {
	return Event{Topic: UserTopic(ev.UserID), Kind: EventMembership, Membership: &ev}
}
