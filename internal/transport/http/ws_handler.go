package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tweetchat-server/internal/config"
	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/proto"
	"github.com/vovakirdan/tweetchat-server/internal/utils"
)

// Query parameters set by the identity layer in front of the chat.
const (
	querySenderID   = "sender_id"
	querySenderName = "sender_name"
)

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	dispatcher *core.Dispatcher
	cfg        config.WSConfig
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(dispatcher *core.Dispatcher, cfg config.WSConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{dispatcher: dispatcher, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.cfg.InsecureSkipVerify,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}

	client := core.NewClient(utils.NewID(), h.cfg.SendBuffer)
	session := h.dispatcher.Connect(client)
	// Leave-global must run even though the request context is gone.
	defer h.dispatcher.Disconnect(context.WithoutCancel(ctx), session)

	query := r.URL.Query()
	if senderID := query.Get(querySenderID); senderID != "" {
		if err := session.Identify(senderID, query.Get(querySenderName)); err != nil {
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("failed to bind identity")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, limiter *rateLimiter) error {
	clientID := session.ConnectionID()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame proto.Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("invalid ws frame")
			if err := writeError(ctx, conn, proto.ErrCodeBadRequest, "invalid json"); err != nil {
				return err
			}
			continue
		}

		if !limiter.allow() {
			h.log.Warn().Str("client_id", clientID).Msg("rate limit exceeded")
			if err := writeError(ctx, conn, proto.ErrCodeRateLimited, "too many messages"); err != nil {
				return err
			}
			continue
		}

		in, protoErr := inboundFromFrame(frame)
		if protoErr != nil {
			h.log.Warn().Str("client_id", clientID).Str("event", frame.Event).Str("reason", protoErr.Msg).Msg("failed to map inbound")
			if err := writeError(ctx, conn, protoErr.Code, protoErr.Msg); err != nil {
				return err
			}
			continue
		}

		err = h.dispatcher.Handle(ctx, session, in)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrSessionClosed):
			return nil
		case errors.Is(err, core.ErrMalformedEvent):
			if err := writeError(ctx, conn, proto.ErrCodeBadRequest, err.Error()); err != nil {
				return err
			}
		default:
			// Storage failures are logged by the dispatcher; the connection
			// stays up.
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Event: proto.EventError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}
