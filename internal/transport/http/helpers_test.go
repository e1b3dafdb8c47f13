package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tweetchat-server/internal/config"
	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/presence"
	"github.com/vovakirdan/tweetchat-server/internal/proto"
	"github.com/vovakirdan/tweetchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts       *httptest.Server
	deps     Deps
	store    *sqlite.SQLiteStore
	presence *presence.Memory
}

func startTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	for _, m := range mutate {
		m(&cfg)
	}

	disabledLogger := zerolog.Nop()
	tracker := presence.NewMemory()
	registry := core.NewRegistry()
	deps := Deps{
		Dispatcher: core.NewDispatcher(st, tracker, registry, &disabledLogger, core.Options{HistoryLimit: cfg.History.Limit}),
		Registry:   registry,
		Events:     st,
		Presence:   tracker,
	}

	server := NewServer(deps, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, deps: deps, store: st, presence: tracker}
}

// wsClient is a test-side connection with its own deadline.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	ctx  context.Context
}

func (e *testEnv) dial(t *testing.T, senderID, senderName string) *wsClient {
	t.Helper()

	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if senderID != "" {
		u += "?" + url.Values{querySenderID: {senderID}, querySenderName: {senderName}}.Encode()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", senderID, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	return &wsClient{t: t, conn: conn, ctx: ctx}
}

func (c *wsClient) send(event, room string, obj any) {
	c.t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		c.t.Fatalf("marshal data: %v", err)
	}
	if err := wsjson.Write(c.ctx, c.conn, proto.Inbound{Event: event, Room: room, Data: data}); err != nil {
		c.t.Fatalf("send %s: %v", event, err)
	}
}

func (c *wsClient) sendRaw(raw string) {
	c.t.Helper()
	if err := c.conn.Write(c.ctx, websocket.MessageText, []byte(raw)); err != nil {
		c.t.Fatalf("send raw: %v", err)
	}
}

type frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func (c *wsClient) read() frame {
	c.t.Helper()

	var f frame
	if err := wsjson.Read(c.ctx, c.conn, &f); err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return f
}

// readUntil skips frames until one with the given event name arrives.
func (c *wsClient) readUntil(event string) frame {
	c.t.Helper()

	for {
		f := c.read()
		if f.Event == event {
			return f
		}
	}
}

func msgObj(behavior, text, senderID, senderName string) map[string]any {
	return map[string]any{
		"behavior":   behavior,
		"message":    text,
		"senderId":   senderID,
		"senderName": senderName,
	}
}

func decodeMessage(t *testing.T, f frame) proto.MessagePayload {
	t.Helper()

	var p proto.MessagePayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatalf("decode message payload: %v (%s)", err, f.Data)
	}
	return p
}

func decodeOnline(t *testing.T, f frame) []proto.OnlineUser {
	t.Helper()

	var users []proto.OnlineUser
	if err := json.Unmarshal(f.Data, &users); err != nil {
		t.Fatalf("decode online users: %v (%s)", err, f.Data)
	}
	return users
}

// enterGlobal enters the lobby and consumes the newcomer's own frames.
func (c *wsClient) enterGlobal(senderID, senderName string) {
	c.t.Helper()

	c.send(proto.EventChatMessage, "", msgObj(string(core.BehaviorEnter), "", senderID, senderName))
	c.readUntil(proto.HistoryEvent(senderID))
	c.readUntil(proto.EventOnlineUsers)
}

func decodeInto(t *testing.T, f frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s: %v (%s)", f.Event, err, f.Data)
	}
}

func nowPlusHour() time.Time {
	return time.Now().Add(time.Hour)
}
