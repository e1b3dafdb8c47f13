package core

import (
	"math"
	"strings"
	"time"
)

// GlobalRoom identifies the implicit lobby every entered connection hears.
// Private rooms are addressed by any non-empty name.
const GlobalRoom = ""

// GlobalRoomName is how the lobby is labelled in logs and stats.
const GlobalRoomName = "chatAll"

// Default texts carried by presence events.
const (
	EnterText = "is entering"
	LeaveText = "has left"
)

// Behavior tags what a message means.
type Behavior string

const (
	// BehaviorEnter announces a participant entering a room.
	BehaviorEnter Behavior = "presence-enter"
	// BehaviorLeave announces a participant leaving the lobby.
	BehaviorLeave Behavior = "presence-leave"
	// BehaviorTalk is an ordinary chat line.
	BehaviorTalk Behavior = "talk"
)

// ParseBehavior maps a wire tag to a Behavior. The legacy tags "inout" and
// "live-talk" are accepted as well.
func ParseBehavior(tag string) (Behavior, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case string(BehaviorEnter), "inout":
		return BehaviorEnter, true
	case string(BehaviorTalk), "live-talk":
		return BehaviorTalk, true
	case string(BehaviorLeave):
		return BehaviorLeave, true
	default:
		return "", false
	}
}

// Channel is the inbound event a message arrived on.
type Channel string

const (
	ChannelChat    Channel = "chat-message"
	ChannelPrivate Channel = "private"
)

// ChannelFor returns the channel used for a room.
func ChannelFor(room string) Channel {
	if room == GlobalRoom {
		return ChannelChat
	}
	return ChannelPrivate
}

// Message is the domain model for a chat message.
// Persisted messages are immutable; ID and CreatedAt come from the event log.
type Message struct {
	ID         int64
	SenderID   string
	SenderName string
	Room       string
	Channel    Channel
	Behavior   Behavior
	Text       string
	CreatedAt  time.Time
}

// IsGlobal reports whether the message belongs to the lobby feed.
func (m Message) IsGlobal() bool {
	return m.Room == GlobalRoom
}

// RoomLabel returns the room name for logs, using GlobalRoomName for the lobby.
func RoomLabel(room string) string {
	if room == GlobalRoom {
		return GlobalRoomName
	}
	return room
}

// Times outside this range overflow UnixNano.
var (
	minTime = time.Unix(0, math.MinInt64).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

// ClampTime limits t to the range where UnixNano is exact, so a far-off
// reference time still selects everything before (or nothing before) it.
func ClampTime(t time.Time) time.Time {
	switch {
	case t.Before(minTime):
		return minTime
	case t.After(maxTime):
		return maxTime
	default:
		return t
	}
}
