package core

import (
	"context"
	"time"
)

// EventLog is the durable, append-only record of chat messages.
type EventLog interface {
	// Append assigns ID and CreatedAt and persists msg atomically.
	// Failures are reported as *StorageError.
	Append(ctx context.Context, msg Message) (Message, error)

	// QueryBefore returns messages of room created strictly before the given
	// time, oldest first, ties broken by ID. GlobalRoom selects the lobby
	// feed. A positive limit keeps only the newest limit messages.
	QueryBefore(ctx context.Context, room string, before time.Time, limit int) ([]Message, error)
}

// PresenceStatus is a user's presence state.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// Presence is one user's presence record.
type Presence struct {
	UserID string
	Name   string
	Status PresenceStatus
}

// PresenceTracker maps user identity to online/offline state.
// Unknown users are offline. Transitions are idempotent; the bool result
// reports whether the state actually changed.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) (bool, error)
	SetOffline(ctx context.Context, userID string) (bool, error)
	ListOnline(ctx context.Context) ([]Presence, error)
}

// IdentityRecorder is implemented by trackers that also remember display
// names, so ListOnline can report them. Called before SetOnline.
type IdentityRecorder interface {
	RecordIdentity(ctx context.Context, userID, name string) error
}
