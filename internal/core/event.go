package core

import "time"

// InboundKind distinguishes the two client events that carry a payload.
type InboundKind int

const (
	// InboundChat is scoped to the global room.
	InboundChat InboundKind = iota
	// InboundPrivate is scoped to the room named in Inbound.Room.
	InboundPrivate
)

// Inbound is a decoded client event handed to the Dispatcher.
type Inbound struct {
	Kind       InboundKind
	Room       string    `validate:"required_if=Kind 1,max=128"`
	Behavior   string    `validate:"required,max=32"`
	Text       string    `validate:"max=4096"`
	SenderID   string    `validate:"required,max=128"`
	SenderName string    `validate:"max=128"`
	CreatedAt  time.Time // zero when the client did not send one
}

// TargetRoom resolves the room an inbound event addresses.
func (in Inbound) TargetRoom() string {
	if in.Kind == InboundPrivate {
		return in.Room
	}
	return GlobalRoom
}

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChatMessage is a global room broadcast.
	EventChatMessage EventKind = iota
	// EventPrivate is a private room broadcast.
	EventPrivate
	// EventHistory replays persisted messages to a single session.
	EventHistory
	// EventOnlineUsers carries the current online list.
	EventOnlineUsers
)

func (k EventKind) String() string {
	switch k {
	case EventChatMessage:
		return "chat-message"
	case EventPrivate:
		return "private"
	case EventHistory:
		return "history"
	case EventOnlineUsers:
		return "online-users"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Room      string
	Recipient string // sender id a history replay is addressed to
	Message   Message
	Messages  []Message
	Online    []Presence
}

// messageEvent builds the broadcast event for a message in its room.
func messageEvent(msg Message) *Event {
	kind := EventChatMessage
	if !msg.IsGlobal() {
		kind = EventPrivate
	}
	return &Event{Kind: kind, Room: msg.Room, Message: msg}
}
