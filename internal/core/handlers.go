package core

import (
	"context"
	"time"
)

// handleEnterGlobal: presence goes online, the history of the lobby is
// replayed to the newcomer, and everyone hears about it.
func (d *Dispatcher) handleEnterGlobal(ctx context.Context, s *Session, in Inbound) error {
	if err := s.EnterGlobal(); err != nil {
		return err
	}
	info := s.Info()
	d.rooms.JoinGlobal(info.ConnectionID)
	ref := d.referenceTime(in)

	d.recordIdentity(ctx, info)
	d.setPresence(ctx, info.SenderID, StatusOnline)
	d.replayHistory(ctx, s, info, GlobalRoom, ref)

	text := in.Text
	if text == "" {
		text = EnterText
	}
	d.broadcast(GlobalRoom, messageEvent(Message{
		SenderID:   info.SenderID,
		SenderName: info.SenderName,
		Room:       GlobalRoom,
		Channel:    ChannelChat,
		Behavior:   BehaviorEnter,
		Text:       text,
		CreatedAt:  ref,
	}))

	d.broadcastOnline(ctx)
	return nil
}

// handleEnterPrivate joins a private room and replays its history.
// Private rooms never touch presence.
func (d *Dispatcher) handleEnterPrivate(ctx context.Context, s *Session, in Inbound) error {
	if err := s.EnterPrivate(in.Room); err != nil {
		return err
	}
	info := s.Info()
	d.rooms.JoinPrivate(info.ConnectionID, in.Room)

	d.replayHistory(ctx, s, info, in.Room, d.referenceTime(in))
	return nil
}

// handleTalk persists a chat line and broadcasts it to its room. A failed
// write is logged and the line is still broadcast.
func (d *Dispatcher) handleTalk(ctx context.Context, s *Session, in Inbound) error {
	if err := s.CanTalk(); err != nil {
		return err
	}
	info := s.Info()
	room := in.TargetRoom()

	msg := Message{
		SenderID:   info.SenderID,
		SenderName: info.SenderName,
		Room:       room,
		Channel:    ChannelFor(room),
		Behavior:   BehaviorTalk,
		Text:       in.Text,
	}

	wctx, cancel := d.detached(ctx)
	persisted, err := d.events.Append(wctx, msg)
	cancel()
	if err != nil {
		err = NewStorageError("append", err)
		d.log.Error().
			Err(err).
			Str("client_id", info.ConnectionID).
			Str("sender_id", msg.SenderID).
			Str("sender_name", msg.SenderName).
			Str("room", RoomLabel(room)).
			Str("channel", string(msg.Channel)).
			Str("text", msg.Text).
			Msg("failed to persist message, broadcasting anyway")
		msg.CreatedAt = d.now()
		persisted = msg
	}

	d.broadcast(room, messageEvent(persisted))
	return err
}

// handleLeaveGlobal runs when a lobby session disconnects.
func (d *Dispatcher) handleLeaveGlobal(ctx context.Context, info SessionInfo) {
	d.setPresence(ctx, info.SenderID, StatusOffline)

	d.broadcast(GlobalRoom, messageEvent(Message{
		SenderID:   info.SenderID,
		SenderName: info.SenderName,
		Room:       GlobalRoom,
		Channel:    ChannelChat,
		Behavior:   BehaviorLeave,
		Text:       LeaveText,
		CreatedAt:  d.now(),
	}))

	d.broadcastOnline(ctx)
}

func (d *Dispatcher) recordIdentity(ctx context.Context, info SessionInfo) {
	recorder, ok := d.presence.(IdentityRecorder)
	if !ok {
		return
	}
	wctx, cancel := d.detached(ctx)
	defer cancel()
	if err := recorder.RecordIdentity(wctx, info.SenderID, info.SenderName); err != nil {
		d.log.Warn().Err(NewStorageError("identity", err)).Str("sender_id", info.SenderID).Msg("failed to record identity")
	}
}

func (d *Dispatcher) setPresence(ctx context.Context, userID string, status PresenceStatus) {
	wctx, cancel := d.detached(ctx)
	defer cancel()

	var (
		changed bool
		err     error
	)
	if status == StatusOnline {
		changed, err = d.presence.SetOnline(wctx, userID)
	} else {
		changed, err = d.presence.SetOffline(wctx, userID)
	}
	if err != nil {
		d.log.Error().Err(NewStorageError("presence", err)).Str("sender_id", userID).Str("status", string(status)).Msg("failed to update presence")
		return
	}
	d.log.Debug().Str("sender_id", userID).Str("status", string(status)).Bool("changed", changed).Msg("presence updated")
}

// replayHistory sends exactly one history event to the session, empty if
// the event log could not be read.
func (d *Dispatcher) replayHistory(ctx context.Context, s *Session, info SessionInfo, room string, before time.Time) {
	history, err := d.events.QueryBefore(ctx, room, before, d.historyLimit)
	if err != nil {
		d.log.Error().
			Err(NewStorageError("query", err)).
			Str("client_id", info.ConnectionID).
			Str("room", RoomLabel(room)).
			Time("before", before).
			Msg("failed to load history")
		history = nil
	}

	ev := &Event{Kind: EventHistory, Room: room, Recipient: info.SenderID, Messages: history}
	if !s.Client().Send(ev) {
		d.log.Warn().Str("client_id", info.ConnectionID).Msg("history replay dropped")
	}
}

func (d *Dispatcher) broadcastOnline(ctx context.Context) {
	online, err := d.presence.ListOnline(ctx)
	if err != nil {
		d.log.Error().Err(NewStorageError("presence list", err)).Msg("failed to list online users")
		return
	}
	d.broadcast(GlobalRoom, &Event{Kind: EventOnlineUsers, Online: online})
}
