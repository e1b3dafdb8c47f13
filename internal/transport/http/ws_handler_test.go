package http

import (
	"testing"

	"github.com/coder/websocket"

	"github.com/vovakirdan/tweetchat-server/internal/config"
	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/proto"
)

// readMessage skips frames until a message event with the given behavior.
func (c *wsClient) readMessage(event string, behavior core.Behavior) proto.MessagePayload {
	c.t.Helper()

	for {
		p := decodeMessage(c.t, c.readUntil(event))
		if p.Behavior == string(behavior) {
			return p
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestEnterGlobalSendsHistoryEnterAndOnline(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "u1", "alice")

	alice.send(proto.EventChatMessage, "", msgObj("presence-enter", "", "u1", "alice"))

	history := alice.read()
	if history.Event != "history-u1" || string(history.Data) != "[]" {
		t.Fatalf("expected empty history-u1 first, got %s %s", history.Event, history.Data)
	}

	enter := decodeMessage(t, alice.readUntil(proto.EventChatMessage))
	if enter.Behavior != "presence-enter" || enter.SenderID != "u1" || enter.Message != core.EnterText {
		t.Fatalf("unexpected enter payload: %+v", enter)
	}

	online := decodeOnline(t, alice.readUntil(proto.EventOnlineUsers))
	if len(online) != 1 || online[0].ID != "u1" || online[0].Name != "alice" {
		t.Fatalf("unexpected online list: %+v", online)
	}
}

func TestGlobalTalkReachesEveryone(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "u1", "alice")
	bob := env.dial(t, "u2", "bob")

	alice.enterGlobal("u1", "alice")
	bob.enterGlobal("u2", "bob")

	alice.send(proto.EventChatMessage, "", msgObj("talk", "hi there", "u1", "alice"))

	for _, c := range []*wsClient{alice, bob} {
		got := c.readMessage(proto.EventChatMessage, core.BehaviorTalk)
		if got.Message != "hi there" || got.SenderName != "alice" || got.ID == 0 {
			t.Fatalf("unexpected talk payload: %+v", got)
		}
	}

	// A late joiner gets the line replayed.
	carol := env.dial(t, "u3", "carol")
	carol.send(proto.EventChatMessage, "", msgObj("presence-enter", "", "u3", "carol"))
	var history []proto.MessagePayload
	decodeInto(t, carol.readUntil(proto.HistoryEvent("u3")), &history)
	if len(history) != 1 || history[0].Message != "hi there" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestLegacyEventAndBehaviorNames(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "", "")

	alice.send(proto.LegacyEventChatMessage, "", msgObj("inout", "", "u1", "alice"))
	alice.readUntil(proto.HistoryEvent("u1"))
	alice.readUntil(proto.EventOnlineUsers)

	alice.send(proto.LegacyEventChatMessage, "", msgObj("live-talk", "old client", "u1", "alice"))
	got := alice.readMessage(proto.EventChatMessage, core.BehaviorTalk)
	if got.Message != "old client" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestPrivateRoomIsolation(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "u1", "alice")
	bob := env.dial(t, "u2", "bob")

	alice.send(proto.EventPrivate, "r1", msgObj("presence-enter", "", "u1", "alice"))
	if f := alice.read(); f.Event != "history-u1" || f.Room != "r1" {
		t.Fatalf("expected r1 history, got %+v", f)
	}
	bob.send(proto.EventPrivate, "r1", msgObj("presence-enter", "", "u2", "bob"))
	bob.readUntil(proto.HistoryEvent("u2"))

	alice.send(proto.EventPrivate, "r1", msgObj("talk", "psst", "u1", "alice"))

	for _, c := range []*wsClient{alice, bob} {
		f := c.readUntil(proto.EventPrivate)
		got := decodeMessage(t, f)
		if f.Room != "r1" || got.Message != "psst" || got.Room != "r1" {
			t.Fatalf("unexpected private frame: %+v %+v", f, got)
		}
	}

	msgs, err := env.store.QueryBefore(t.Context(), core.GlobalRoom, nowPlusHour(), 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("private line leaked into global history: %+v", msgs)
	}
}

func TestDisconnectAnnouncesLeave(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "u1", "alice")
	bob := env.dial(t, "u2", "bob")

	alice.enterGlobal("u1", "alice")
	bob.enterGlobal("u2", "bob")

	if err := bob.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close bob: %v", err)
	}

	left := alice.readMessage(proto.EventChatMessage, core.BehaviorLeave)
	if left.SenderID != "u2" || left.Message != core.LeaveText {
		t.Fatalf("unexpected leave payload: %+v", left)
	}
	online := decodeOnline(t, alice.readUntil(proto.EventOnlineUsers))
	if len(online) != 1 || online[0].ID != "u1" {
		t.Fatalf("bob still online: %+v", online)
	}
}

func TestMalformedFramesGetErrors(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "u1", "alice")

	tests := []struct {
		name string
		send func()
		code string
	}{
		{
			name: "invalid json",
			send: func() { alice.sendRaw(`{"event":`) },
			code: proto.ErrCodeBadRequest,
		},
		{
			name: "unknown event",
			send: func() { alice.send("video-call", "", msgObj("talk", "x", "u1", "alice")) },
			code: proto.ErrCodeUnknownEvent,
		},
		{
			name: "missing data",
			send: func() { alice.sendRaw(`{"event":"chat-message"}`) },
			code: proto.ErrCodeBadRequest,
		},
		{
			name: "unknown behavior",
			send: func() { alice.send(proto.EventChatMessage, "", msgObj("dance", "x", "u1", "alice")) },
			code: proto.ErrCodeBadRequest,
		},
		{
			name: "sender mismatch",
			send: func() { alice.send(proto.EventChatMessage, "", msgObj("talk", "x", "u9", "mallory")) },
			code: proto.ErrCodeBadRequest,
		},
		{
			name: "talk before enter",
			send: func() { alice.send(proto.EventChatMessage, "", msgObj("talk", "x", "u1", "alice")) },
			code: proto.ErrCodeBadRequest,
		},
		{
			name: "private without room",
			send: func() { alice.send(proto.EventPrivate, "", msgObj("presence-enter", "", "u1", "alice")) },
			code: proto.ErrCodeBadRequest,
		},
	}

	// One connection carries every case, so they run in order on this goroutine.
	for _, tt := range tests {
		tt.send()
		f := alice.read()
		if f.Event != proto.EventError || f.Error == nil || f.Error.Code != tt.code {
			t.Fatalf("%s: expected %s error, got %+v", tt.name, tt.code, f)
		}
	}

	// The connection survives malformed input.
	alice.enterGlobal("u1", "alice")
}

func TestRateLimitRejectsBurst(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) { cfg.WS.RateLimitPerMinute = 2 })
	alice := env.dial(t, "u1", "alice")

	alice.enterGlobal("u1", "alice")
	alice.send(proto.EventChatMessage, "", msgObj("talk", "one", "u1", "alice"))
	alice.readMessage(proto.EventChatMessage, core.BehaviorTalk)

	alice.send(proto.EventChatMessage, "", msgObj("talk", "two", "u1", "alice"))
	f := alice.read()
	if f.Event != proto.EventError || f.Error == nil || f.Error.Code != proto.ErrCodeRateLimited {
		t.Fatalf("expected rate limit error, got %+v", f)
	}
}
