package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// DefaultWriteTimeout bounds a persistence call when Options leaves it unset.
const DefaultWriteTimeout = 5 * time.Second

// Options tunes the Dispatcher.
type Options struct {
	// HistoryLimit caps history replay; 0 replays everything.
	HistoryLimit int
	// WriteTimeout bounds Append and presence writes.
	WriteTimeout time.Duration
	// Now overrides the clock used for events without a client timestamp.
	Now func() time.Time
}

// Dispatcher routes inbound events from sessions to the event log, the
// presence tracker and the room registry, and fans out the results.
type Dispatcher struct {
	events   EventLog
	presence PresenceTracker
	rooms    RoomRegistry
	validate *validator.Validate
	log      *zerolog.Logger

	historyLimit int
	writeTimeout time.Duration
	now          func() time.Time
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(events EventLog, presence PresenceTracker, rooms RoomRegistry, logger *zerolog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	return &Dispatcher{
		events:       events,
		presence:     presence,
		rooms:        rooms,
		validate:     validator.New(),
		log:          logger,
		historyLimit: opts.HistoryLimit,
		writeTimeout: opts.WriteTimeout,
		now:          opts.Now,
	}
}

// Connect registers a new connection and returns its session.
func (d *Dispatcher) Connect(client *Client) *Session {
	d.rooms.Add(client)
	d.log.Debug().Str("client_id", client.ID).Msg("client connected")
	return NewSession(client)
}

// Handle processes one inbound event for a session. Errors wrapping
// ErrMalformedEvent or ErrSessionClosed mean the event was dropped; the
// session stays usable in the first case.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, in Inbound) error {
	behavior, err := d.check(in)
	if err != nil {
		d.drop(s, in, err)
		return err
	}
	if err := s.Identify(in.SenderID, in.SenderName); err != nil {
		d.drop(s, in, err)
		return err
	}

	switch {
	case behavior == BehaviorEnter && in.Kind == InboundChat:
		err = d.handleEnterGlobal(ctx, s, in)
	case behavior == BehaviorEnter:
		err = d.handleEnterPrivate(ctx, s, in)
	case behavior == BehaviorTalk:
		err = d.handleTalk(ctx, s, in)
	default:
		err = malformed("behavior %q is not accepted from clients", behavior)
	}
	if err != nil && (errors.Is(err, ErrMalformedEvent) || errors.Is(err, ErrSessionClosed)) {
		d.drop(s, in, err)
	}
	return err
}

// Disconnect tears down a session. In-flight writes issued by the session
// are not cancelled.
func (d *Dispatcher) Disconnect(ctx context.Context, s *Session) {
	info, first := s.Close()
	d.rooms.Remove(info.ConnectionID)
	s.Client().Close()
	if !first {
		return
	}

	d.log.Debug().
		Str("client_id", info.ConnectionID).
		Str("sender_id", info.SenderID).
		Str("room", RoomLabel(info.Room)).
		Msg("client disconnected")

	if info.InGlobal {
		d.handleLeaveGlobal(ctx, info)
	}
}

func (d *Dispatcher) check(in Inbound) (Behavior, error) {
	if err := d.validate.Struct(in); err != nil {
		return "", malformed("%v", err)
	}
	behavior, ok := ParseBehavior(in.Behavior)
	if !ok {
		return "", malformed("unknown behavior %q", in.Behavior)
	}
	return behavior, nil
}

func (d *Dispatcher) drop(s *Session, in Inbound, err error) {
	d.log.Warn().
		Err(err).
		Str("client_id", s.ConnectionID()).
		Str("sender_id", in.SenderID).
		Str("behavior", in.Behavior).
		Str("room", RoomLabel(in.TargetRoom())).
		Msg("dropping inbound event")
}

// detached returns a context for writes that must outlive the connection.
func (d *Dispatcher) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.writeTimeout)
}

// broadcast delivers ev to the fan-out set of room and returns the number
// of clients that accepted it.
func (d *Dispatcher) broadcast(room string, ev *Event) int {
	members := d.rooms.MembersOf(room)
	if len(members) == 0 && room != GlobalRoom {
		d.log.Debug().Err(ErrUnknownRoom).Str("room", room).Msg("no members to deliver to")
		return 0
	}

	delivered := 0
	for _, c := range members {
		if c.Send(ev) {
			delivered++
			continue
		}
		d.log.Debug().Str("client_id", c.ID).Str("event", ev.Kind.String()).Msg("dropped event for slow or closed client")
	}
	return delivered
}

func (d *Dispatcher) referenceTime(in Inbound) time.Time {
	if in.CreatedAt.IsZero() {
		return d.now()
	}
	return ClampTime(in.CreatedAt)
}
