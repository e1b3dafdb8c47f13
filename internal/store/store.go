package store

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/tweetchat-server/internal/core"
)

// ErrUserNotFound is returned when the user directory has no such id.
var ErrUserNotFound = errors.New("user not found")

// User is a user directory row. Identity is owned by the surrounding web
// application; the chat core only reads names and flips Status.
type User struct {
	ID        string
	Name      string
	Status    core.PresenceStatus
	UpdatedAt time.Time
}

// UserStore is the user directory collaborator.
type UserStore interface {
	// UpsertUser creates the user or refreshes its name.
	UpsertUser(ctx context.Context, id, name string) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// UpdateUserStatus sets the presence status, creating unknown users.
	// Returns true if the stored status changed.
	UpdateUserStatus(ctx context.Context, id string, status core.PresenceStatus) (bool, error)

	// ListUsersByStatus lists users with the given status ordered by ID.
	ListUsersByStatus(ctx context.Context, status core.PresenceStatus) ([]*User, error)
}

// Store aggregates the user directory and the event log.
type Store interface {
	UserStore
	core.EventLog

	// Close closes the underlying database connection.
	Close() error
}
