package core

import (
	"fmt"
	"sync"
)

// SessionState is where a connection is in its lifecycle.
type SessionState int

const (
	// StateConnected is a fresh connection with no identity.
	StateConnected SessionState = iota
	// StateIdentified has a sender bound but has not entered a room.
	StateIdentified
	// StateInRoom has entered the global room or a private room.
	StateInRoom
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SessionInfo is a point-in-time copy of a session.
type SessionInfo struct {
	ConnectionID string
	SenderID     string
	SenderName   string
	State        SessionState
	Room         string
	InGlobal     bool
}

// Session owns the transient identity of one connection.
// Once the active room is the global room it is never reassigned.
type Session struct {
	client *Client

	mu         sync.Mutex
	state      SessionState
	senderID   string
	senderName string
	room       string
	inGlobal   bool
}

// NewSession starts a session in StateConnected.
func NewSession(client *Client) *Session {
	return &Session{client: client, state: StateConnected}
}

// ConnectionID returns the id of the underlying connection.
func (s *Session) ConnectionID() string {
	return s.client.ID
}

// Client returns the outbound side of the connection.
func (s *Session) Client() *Client {
	return s.client
}

// Identify binds the sender on the first event that carries one. Later
// events must carry the same sender id.
func (s *Session) Identify(senderID, senderName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return ErrSessionClosed
	case StateConnected:
		if senderID == "" {
			return malformed("missing sender id")
		}
		s.senderID = senderID
		s.senderName = senderName
		s.state = StateIdentified
		return nil
	default:
		if senderID != s.senderID {
			return malformed("sender %q does not match session sender %q", senderID, s.senderID)
		}
		if s.senderName == "" {
			s.senderName = senderName
		}
		return nil
	}
}

// EnterGlobal moves the session into the global room.
func (s *Session) EnterGlobal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireIdentityLocked(); err != nil {
		return err
	}
	s.room = GlobalRoom
	s.inGlobal = true
	s.state = StateInRoom
	return nil
}

// EnterPrivate moves the session into a private room unless it already
// sits in the global room, which is sticky.
func (s *Session) EnterPrivate(room string) error {
	if room == GlobalRoom {
		return malformed("private room name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireIdentityLocked(); err != nil {
		return err
	}
	if !s.inGlobal {
		s.room = room
	}
	s.state = StateInRoom
	return nil
}

// CanTalk reports whether the session has entered any room.
func (s *Session) CanTalk() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return ErrSessionClosed
	case StateInRoom:
		return nil
	default:
		return malformed("talk before entering a room (state %s)", s.state)
	}
}

// Close marks the session disconnected and returns its final state.
// The second return value is false if it was already closed.
func (s *Session) Close() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.infoLocked()
	if s.state == StateDisconnected {
		return info, false
	}
	s.state = StateDisconnected
	return info, true
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() SessionInfo {
	return SessionInfo{
		ConnectionID: s.client.ID,
		SenderID:     s.senderID,
		SenderName:   s.senderName,
		State:        s.state,
		Room:         s.room,
		InGlobal:     s.inGlobal,
	}
}

func (s *Session) requireIdentityLocked() error {
	switch s.state {
	case StateDisconnected:
		return ErrSessionClosed
	case StateConnected:
		return fmt.Errorf("%w: session has no sender", ErrMalformedEvent)
	default:
		return nil
	}
}
