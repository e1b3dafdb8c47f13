package presence

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/vovakirdan/tweetchat-server/internal/core"
)

// Memory keeps presence in process. State is lost on restart.
type Memory struct {
	mu     sync.Mutex
	online map[string]struct{}
	names  map[string]string
}

// NewMemory returns an empty in-process tracker.
func NewMemory() *Memory {
	return &Memory{
		online: make(map[string]struct{}),
		names:  make(map[string]string),
	}
}

// RecordIdentity remembers the display name of userID. Empty names are ignored.
func (m *Memory) RecordIdentity(_ context.Context, userID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != "" {
		m.names[userID] = name
	}
	return nil
}

// SetOnline marks userID online and reports whether it was offline before.
func (m *Memory) SetOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.online[userID]; ok {
		return false, nil
	}
	m.online[userID] = struct{}{}
	return true, nil
}

// SetOffline marks userID offline and reports whether it was online before.
func (m *Memory) SetOffline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.online[userID]; !ok {
		return false, nil
	}
	delete(m.online, userID)
	return true, nil
}

// ListOnline returns the online users ordered by id.
func (m *Memory) ListOnline(context.Context) ([]core.Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := lo.MapToSlice(m.online, func(id string, _ struct{}) core.Presence {
		return core.Presence{UserID: id, Name: m.names[id], Status: core.StatusOnline}
	})
	return sortByUserID(list), nil
}
