package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Room  string          `json:"room,omitempty"`
}

const (
	EventChatMessage = "chat-message"
	EventPrivate     = "private"
	EventOnlineUsers = "online-users"
	EventError       = "error"

	// LegacyEventChatMessage is the spelling older clients use.
	LegacyEventChatMessage = "chat message"

	historyEventPrefix = "history-"
)

// Error codes sent in Outbound.Error.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnknownEvent = "unknown_event"
	ErrCodeRateLimited  = "rate_limited"
)

// HistoryEvent names the history replay addressed to one sender.
func HistoryEvent(senderID string) string {
	return historyEventPrefix + senderID
}

// NormalizeEvent maps accepted spellings of an inbound event name to the
// canonical one.
func NormalizeEvent(name string) string {
	if name == LegacyEventChatMessage {
		return EventChatMessage
	}
	return name
}

// MsgObj is the message object carried in the data of chat events.
type MsgObj struct {
	Behavior   string    `json:"behavior"`
	Message    string    `json:"message"`
	SenderID   ID        `json:"senderId"`
	SenderName string    `json:"senderName"`
	CreatedAt  Timestamp `json:"createdAt,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessagePayload is a delivered or replayed message.
type MessagePayload struct {
	ID         int64  `json:"id,omitempty"`
	Behavior   string `json:"behavior"`
	Message    string `json:"message"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Room       string `json:"room,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// OnlineUser is one entry of the online-users list.
type OnlineUser struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ID accepts a JSON string or number. Numeric ids are kept in their
// decimal form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
}

// Timestamp accepts an RFC 3339 string or unix milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("createdAt: %w", err)
		}
		t.Time = parsed
		return nil
	}

	ms, err := strconv.ParseInt(strings.TrimSuffix(string(data), ".0"), 10, 64)
	if err != nil {
		return fmt.Errorf("createdAt must be RFC 3339 or unix milliseconds: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// FormatTime renders server timestamps on the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
