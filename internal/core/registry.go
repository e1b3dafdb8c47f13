package core

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// RoomRegistry tracks which live connections belong to which room.
type RoomRegistry interface {
	Add(client *Client)
	Remove(connectionID string)
	JoinGlobal(connectionID string)
	JoinPrivate(connectionID, room string)
	MembersOf(room string) []*Client
	Leave(connectionID string)
}

// FanOut resolves the clients an event addressed to a room reaches.
// It is evaluated under the registry read lock.
type FanOut interface {
	resolve(r *Registry) []*Client
}

// AllConnections is the lobby strategy: every pooled connection.
type AllConnections struct{}

func (AllConnections) resolve(r *Registry) []*Client {
	return lo.Values(r.clients)
}

// ExplicitSet is the private room strategy: only joined connections.
type ExplicitSet struct {
	Room string
}

func (s ExplicitSet) resolve(r *Registry) []*Client {
	members, ok := r.rooms[s.Room]
	if !ok {
		return nil
	}
	return lo.Values(members)
}

// StrategyFor picks the fan-out strategy for a room.
func StrategyFor(room string) FanOut {
	if room == GlobalRoom {
		return AllConnections{}
	}
	return ExplicitSet{Room: room}
}

// RoomStats describes one private room.
type RoomStats struct {
	Name    string
	Members int
}

// Registry is the in-process RoomRegistry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	global  map[string]struct{}
	rooms   map[string]map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		global:  make(map[string]struct{}),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Add puts a connection into the pool that global fan-out draws from.
func (r *Registry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

// Remove drops a connection from the pool and from every room.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connectionID)
	delete(r.clients, connectionID)
}

// JoinGlobal records that a pooled connection entered the lobby.
// Fan-out for the lobby does not depend on it.
func (r *Registry) JoinGlobal(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[connectionID]; !ok {
		return
	}
	r.global[connectionID] = struct{}{}
}

// JoinPrivate adds a pooled connection to a room, creating the room on
// first join. A connection may end up in several contexts.
func (r *Registry) JoinPrivate(connectionID, room string) {
	if room == GlobalRoom {
		r.JoinGlobal(connectionID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[connectionID]
	if !ok {
		return
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[connectionID] = client
}

// MembersOf returns a snapshot of the fan-out set for a room.
func (r *Registry) MembersOf(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return StrategyFor(room).resolve(r)
}

// MemberIDs is MembersOf reduced to sorted connection ids.
func (r *Registry) MemberIDs(room string) []string {
	ids := lo.Map(r.MembersOf(room), func(c *Client, _ int) string { return c.ID })
	sort.Strings(ids)
	return ids
}

// Leave removes a connection from every room but keeps it pooled.
func (r *Registry) Leave(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connectionID)
}

func (r *Registry) leaveLocked(connectionID string) {
	delete(r.global, connectionID)
	for name, members := range r.rooms {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, name)
		}
	}
}

// ConnectionCount returns the size of the pool.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// GlobalCount returns how many connections entered the lobby.
func (r *Registry) GlobalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.global)
}

// Rooms lists private rooms sorted by name.
func (r *Registry) Rooms() []RoomStats {
	r.mu.RLock()
	stats := lo.MapToSlice(r.rooms, func(name string, members map[string]*Client) RoomStats {
		return RoomStats{Name: name, Members: len(members)}
	})
	r.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
