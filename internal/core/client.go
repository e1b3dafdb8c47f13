package core

import "sync"

// DefaultSendBuffer is the outbound queue size used when none is given.
const DefaultSendBuffer = 64

// Client is one live connection as seen by the core layer.
// Events is drained by the transport; Send never blocks.
type Client struct {
	ID     string
	Events chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with an outbound queue of the given size.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event. It returns false if the client is closed or its
// queue is full; slow consumers lose events rather than stall a broadcast.
func (c *Client) Send(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Close stops further delivery. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
