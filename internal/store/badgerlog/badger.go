package badgerlog

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/store"
)

const (
	keyPrefix    = "chat:"
	sequenceKey  = "seq:chat"
	seqBandwidth = 128
)

// EventLog implements core.EventLog on top of BadgerDB.
//
// Keys are "chat:{hex(room)}:{unix_nano padded to 19}:{id padded to 19}".
// Hex-encoding the room keeps one room's prefix from matching another's,
// and the padding makes lexicographic key order equal (createdAt, id) order.
type EventLog struct {
	db    *badger.DB
	seq   *badger.Sequence
	clock *store.Clock

	// writeMu keeps id, timestamp and write in a single step.
	writeMu sync.Mutex
}

// Options configures Open.
type Options struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *zerolog.Logger
}

// Open opens (or creates) a Badger event log.
func Open(opts Options) (*EventLog, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(newLogger(opts.Logger))

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("get sequence: %w", err)
	}

	l := &EventLog{db: db, seq: seq, clock: store.NewClock(nil)}
	if err := l.primeClock(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the sequence lease and closes the database.
func (l *EventLog) Close() error {
	seqErr := l.seq.Release()
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	if seqErr != nil {
		return fmt.Errorf("release sequence: %w", seqErr)
	}
	return nil
}

type diskMessage struct {
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Room       string `json:"room"`
	Channel    string `json:"channel"`
	Behavior   string `json:"behavior"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
}

func roomPrefix(room string) []byte {
	return []byte(keyPrefix + hex.EncodeToString([]byte(room)) + ":")
}

func messageKey(msg core.Message) []byte {
	return fmt.Appendf(roomPrefix(msg.Room), "%019d:%019d", msg.CreatedAt.UnixNano(), msg.ID)
}

// Append persists a message, assigning ID and CreatedAt.
func (l *EventLog) Append(ctx context.Context, msg core.Message) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, core.NewStorageError("append", err)
	}
	if msg.Channel == "" {
		msg.Channel = core.ChannelFor(msg.Room)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	id, err := l.seq.Next()
	if err != nil {
		return core.Message{}, core.NewStorageError("append", fmt.Errorf("next id: %w", err))
	}
	// Badger sequences start at zero; ids start at one like SQL rowids.
	msg.ID = int64(id) + 1
	msg.CreatedAt = l.clock.Next()

	value, err := json.Marshal(toDisk(msg))
	if err != nil {
		return core.Message{}, core.NewStorageError("append", fmt.Errorf("encode message: %w", err))
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), value)
	})
	if err != nil {
		return core.Message{}, core.NewStorageError("append", fmt.Errorf("write message: %w", err))
	}
	return msg, nil
}

// QueryBefore walks the room prefix backwards from the reference time and
// returns the collected messages oldest first.
func (l *EventLog) QueryBefore(ctx context.Context, room string, before time.Time, limit int) ([]core.Message, error) {
	nanos := core.ClampTime(before).UnixNano()
	if nanos <= 0 {
		// Stored timestamps are never before the epoch.
		return nil, nil
	}
	prefix := roomPrefix(room)
	seekKey := fmt.Appendf(append([]byte(nil), prefix...), "%019d", nanos)

	var messages []core.Message
	err := l.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// With Reverse, Seek lands on the largest key <= seekKey. Every key
		// with the reference timestamp itself sorts after seekKey.
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(messages) == limit {
				break
			}
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return fmt.Errorf("decode %q: %w", it.Item().Key(), err)
			}
			messages = append(messages, fromDisk(dm))
		}
		return nil
	})
	if err != nil {
		return nil, core.NewStorageError("query", err)
	}

	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

// primeClock raises the clock floor to the newest persisted timestamp so a
// restart with a lagging wall clock still appends in order.
func (l *EventLog) primeClock() error {
	return l.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var ts int64
			if _, err := fmt.Sscanf(string(timestampPart(it.Item().Key())), "%019d", &ts); err != nil {
				continue
			}
			l.clock.Observe(time.Unix(0, ts))
		}
		return nil
	})
}

// timestampPart extracts the padded timestamp from a message key.
func timestampPart(key []byte) []byte {
	// chat:{room}:{ts}:{id}
	const tail = 19 + 1 + 19
	if len(key) < tail {
		return nil
	}
	return key[len(key)-tail : len(key)-tail+19]
}

func toDisk(msg core.Message) diskMessage {
	return diskMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Room:       msg.Room,
		Channel:    string(msg.Channel),
		Behavior:   string(msg.Behavior),
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt.UnixNano(),
	}
}

func fromDisk(dm diskMessage) core.Message {
	return core.Message{
		ID:         dm.ID,
		SenderID:   dm.SenderID,
		SenderName: dm.SenderName,
		Room:       dm.Room,
		Channel:    core.Channel(dm.Channel),
		Behavior:   core.Behavior(dm.Behavior),
		Text:       dm.Text,
		CreatedAt:  time.Unix(0, dm.CreatedAt).UTC(),
	}
}
