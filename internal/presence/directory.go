package presence

import (
	"context"
	"fmt"

	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/store"
)

// Directory stores presence as the status column of the user directory.
type Directory struct {
	users store.UserStore
}

// NewDirectory returns a tracker backed by the given user directory.
func NewDirectory(users store.UserStore) *Directory {
	return &Directory{users: users}
}

// RecordIdentity makes sure the user row exists with the latest name.
// An empty name keeps whatever the directory already has.
func (d *Directory) RecordIdentity(ctx context.Context, userID, name string) error {
	if name == "" {
		return nil
	}
	if err := d.users.UpsertUser(ctx, userID, name); err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return nil
}

// SetOnline flips the user row to online, creating it if needed.
func (d *Directory) SetOnline(ctx context.Context, userID string) (bool, error) {
	return d.users.UpdateUserStatus(ctx, userID, core.StatusOnline)
}

// SetOffline flips the user row to offline. Unknown users are already offline.
func (d *Directory) SetOffline(ctx context.Context, userID string) (bool, error) {
	return d.users.UpdateUserStatus(ctx, userID, core.StatusOffline)
}

// ListOnline lists online user rows ordered by id, names included.
func (d *Directory) ListOnline(ctx context.Context) ([]core.Presence, error) {
	users, err := d.users.ListUsersByStatus(ctx, core.StatusOnline)
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	list := make([]core.Presence, 0, len(users))
	for _, u := range users {
		list = append(list, core.Presence{UserID: u.ID, Name: u.Name, Status: u.Status})
	}
	return list, nil
}
