package http

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/proto"
)

// inboundFromFrame decodes a client frame into a core event. A non-nil
// proto.Error means the frame is answered with an error and otherwise
// ignored.
func inboundFromFrame(frame proto.Inbound) (core.Inbound, *proto.Error) {
	var kind core.InboundKind
	switch proto.NormalizeEvent(frame.Event) {
	case proto.EventChatMessage:
		kind = core.InboundChat
	case proto.EventPrivate:
		kind = core.InboundPrivate
	default:
		return core.Inbound{}, &proto.Error{Code: proto.ErrCodeUnknownEvent, Msg: "unknown event " + quote(frame.Event)}
	}

	if len(frame.Data) == 0 {
		return core.Inbound{}, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "data is required"}
	}
	var obj proto.MsgObj
	if err := json.Unmarshal(frame.Data, &obj); err != nil {
		return core.Inbound{}, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "invalid message object: " + err.Error()}
	}

	in := core.Inbound{
		Kind:       kind,
		Behavior:   obj.Behavior,
		Text:       obj.Message,
		SenderID:   string(obj.SenderID),
		SenderName: obj.SenderName,
		CreatedAt:  obj.CreatedAt.Time,
	}
	if kind == core.InboundPrivate {
		in.Room = strings.TrimSpace(frame.Room)
	}
	return in, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventChatMessage:
		return proto.Outbound{
			Event: proto.EventChatMessage,
			Data:  messagePayload(event.Message),
		}
	case core.EventPrivate:
		return proto.Outbound{
			Event: proto.EventPrivate,
			Room:  event.Room,
			Data:  messagePayload(event.Message),
		}
	case core.EventHistory:
		return proto.Outbound{
			Event: proto.HistoryEvent(event.Recipient),
			Room:  event.Room,
			Data:  messagePayloads(event.Messages),
		}
	case core.EventOnlineUsers:
		return proto.Outbound{
			Event: proto.EventOnlineUsers,
			Data:  onlineUsers(event.Online),
		}
	default:
		return proto.Outbound{Event: event.Kind.String()}
	}
}

func messagePayload(msg core.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         msg.ID,
		Behavior:   string(msg.Behavior),
		Message:    msg.Text,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Room:       msg.Room,
		CreatedAt:  proto.FormatTime(msg.CreatedAt),
	}
}

// messagePayloads never returns nil so empty history encodes as [].
func messagePayloads(msgs []core.Message) []proto.MessagePayload {
	return append([]proto.MessagePayload{}, lo.Map(msgs, func(m core.Message, _ int) proto.MessagePayload {
		return messagePayload(m)
	})...)
}

func onlineUsers(online []core.Presence) []proto.OnlineUser {
	return append([]proto.OnlineUser{}, lo.Map(online, func(p core.Presence, _ int) proto.OnlineUser {
		return proto.OnlineUser{ID: p.UserID, Name: p.Name, Status: string(p.Status)}
	})...)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
