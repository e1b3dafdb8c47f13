package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain empties a client queue and returns what it held.
func drain(c *Client) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// fakeEventLog keeps messages in memory and stamps them from a stepping clock.
type fakeEventLog struct {
	mu       sync.Mutex
	messages []Message
	nextID   int64
	clock    time.Time
	step     time.Duration
	failNext error
	queries  int
	lastRef  time.Time
}

func newFakeEventLog(start time.Time) *fakeEventLog {
	return &fakeEventLog{clock: start, step: time.Second}
}

func (f *fakeEventLog) Append(_ context.Context, msg Message) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return Message{}, err
	}
	f.nextID++
	f.clock = f.clock.Add(f.step)
	msg.ID = f.nextID
	msg.CreatedAt = f.clock
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeEventLog) QueryBefore(_ context.Context, room string, before time.Time, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++
	f.lastRef = before
	var out []Message
	for _, m := range f.messages {
		if m.Room == room && m.CreatedAt.Before(before) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeEventLog) all() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// fakePresence records every transition it is asked for.
type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	calls  []string
	err    error
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]bool)}
}

func (f *fakePresence) SetOnline(_ context.Context, userID string) (bool, error) {
	return f.set(userID, true)
}

func (f *fakePresence) SetOffline(_ context.Context, userID string) (bool, error) {
	return f.set(userID, false)
}

func (f *fakePresence) set(userID string, online bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if online {
		f.calls = append(f.calls, "online:"+userID)
	} else {
		f.calls = append(f.calls, "offline:"+userID)
	}
	if f.err != nil {
		return false, f.err
	}
	changed := f.online[userID] != online
	f.online[userID] = online
	return changed, nil
}

func (f *fakePresence) ListOnline(context.Context) ([]Presence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Presence
	for id, on := range f.online {
		if on {
			out = append(out, Presence{UserID: id, Status: StatusOnline})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakePresence) transitions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var errDiskFull = errors.New("disk full")

type harness struct {
	dispatcher *Dispatcher
	events     *fakeEventLog
	presence   *fakePresence
	rooms      *Registry
	start      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{
		events:   newFakeEventLog(start),
		presence: newFakePresence(),
		rooms:    NewRegistry(),
		start:    start,
	}
	h.dispatcher = NewDispatcher(h.events, h.presence, h.rooms, nil, Options{
		Now: func() time.Time { return start.Add(time.Hour) },
	})
	return h
}

func (h *harness) connect(id string) *Session {
	return h.dispatcher.Connect(NewClient(id, 32))
}

func enter(sender, name string, at time.Time) Inbound {
	return Inbound{Kind: InboundChat, Behavior: "inout", Text: EnterText, SenderID: sender, SenderName: name, CreatedAt: at}
}

func enterPrivate(sender, name, room string, at time.Time) Inbound {
	return Inbound{Kind: InboundPrivate, Room: room, Behavior: "inout", Text: EnterText, SenderID: sender, SenderName: name, CreatedAt: at}
}

func talk(sender, text string) Inbound {
	return Inbound{Kind: InboundChat, Behavior: "live-talk", Text: text, SenderID: sender}
}

func talkPrivate(sender, room, text string) Inbound {
	return Inbound{Kind: InboundPrivate, Room: room, Behavior: string(BehaviorTalk), Text: text, SenderID: sender}
}
