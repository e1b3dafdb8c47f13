package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/tweetchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	id := flag.String("id", "cli-user", "sender id")
	name := flag.String("name", "", "display name (defaults to id)")
	room := flag.String("room", "", "private room to enter; empty enters the lobby")
	flag.Parse()
	if *name == "" {
		*name = *id
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	target := *addr + "?" + url.Values{"sender_id": {*id}, "sender_name": {*name}}.Encode()
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	event := proto.EventChatMessage
	if *room != "" {
		event = proto.EventPrivate
	}
	send := func(behavior, text string) error {
		data, err := json.Marshal(proto.MsgObj{Behavior: behavior, Message: text, SenderID: proto.ID(*id), SenderName: *name})
		if err != nil {
			return fmt.Errorf("marshal msg: %w", err)
		}
		return wsjson.Write(ctx, conn, proto.Inbound{Event: event, Room: *room, Data: data})
	}

	if err := send("presence-enter", ""); err != nil {
		return fmt.Errorf("enter: %w", err)
	}

	where := "the lobby"
	if *room != "" {
		where = "room " + *room
	}
	fmt.Printf("Connected to %s as %s in %s\n", *addr, *name, where)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, send)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type outbound struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch {
		case out.Event == proto.EventChatMessage || out.Event == proto.EventPrivate:
			var msg proto.MessagePayload
			if err := json.Unmarshal(out.Data, &msg); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			printMessage(msg)
		case strings.HasPrefix(out.Event, "history-"):
			var msgs []proto.MessagePayload
			if err := json.Unmarshal(out.Data, &msgs); err != nil {
				log.Printf("unmarshal history: %v", err)
				continue
			}
			fmt.Printf("--- %d earlier messages ---\n", len(msgs))
			for _, msg := range msgs {
				printMessage(msg)
			}
		case out.Event == proto.EventOnlineUsers:
			var users []proto.OnlineUser
			if err := json.Unmarshal(out.Data, &users); err != nil {
				log.Printf("unmarshal online users: %v", err)
				continue
			}
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Name)
			}
			fmt.Printf("online: %s\n", strings.Join(names, ", "))
		case out.Event == proto.EventError && out.Error != nil:
			fmt.Printf("error %s: %s\n", out.Error.Code, out.Error.Msg)
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func printMessage(msg proto.MessagePayload) {
	label := "chatAll"
	if msg.Room != "" {
		label = msg.Room
	}
	if msg.Behavior == "talk" {
		fmt.Printf("[%s] %s: %s\n", label, msg.SenderName, msg.Message)
		return
	}
	fmt.Printf("[%s] %s %s\n", label, msg.SenderName, msg.Message)
}

func writeLoop(ctx context.Context, send func(behavior, text string) error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := send("talk", text); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
