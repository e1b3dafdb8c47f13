package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock *store.Clock

	// writeMu keeps timestamp assignment and insert in one step so id order
	// and created_at order agree.
	writeMu sync.Mutex
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store and runs a setup function before
// the schema is applied. Useful for tests that seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, clock: store.NewClock(nil)}

	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if err := s.primeClock(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) primeClock(ctx context.Context) error {
	var newest int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_at), 0) FROM chats`).Scan(&newest); err != nil {
		return fmt.Errorf("read newest chat: %w", err)
	}
	if newest > 0 {
		s.clock.Observe(time.Unix(0, newest))
	}
	return nil
}

// ==== EventLog implementation ====

// Append persists a chat message, assigning its ID and CreatedAt.
func (s *SQLiteStore) Append(ctx context.Context, msg core.Message) (core.Message, error) {
	if msg.Channel == "" {
		msg.Channel = core.ChannelFor(msg.Room)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	msg.CreatedAt = s.clock.Next()

	query := `
		INSERT INTO chats (sender_id, sender_name, room, channel, behavior, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.SenderID,
		msg.SenderName,
		msg.Room,
		string(msg.Channel),
		string(msg.Behavior),
		msg.Text,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return core.Message{}, core.NewStorageError("append", fmt.Errorf("insert chat: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return core.Message{}, core.NewStorageError("append", fmt.Errorf("get last insert id: %w", err))
	}

	msg.ID = id
	return msg, nil
}

// QueryBefore lists a room's messages created before the given time, oldest first.
func (s *SQLiteStore) QueryBefore(ctx context.Context, room string, before time.Time, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}

	query := `
		SELECT id, sender_id, sender_name, room, channel, behavior, message, created_at
		FROM chats
		WHERE room = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, core.ClampTime(before).UnixNano(), limit)
	if err != nil {
		return nil, core.NewStorageError("query", fmt.Errorf("query chats: %w", err))
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var (
			msg       core.Message
			channel   string
			behavior  string
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.Room, &channel, &behavior, &msg.Text, &createdAt); err != nil {
			return nil, core.NewStorageError("query", fmt.Errorf("scan chat: %w", err))
		}
		msg.Channel = core.Channel(channel)
		msg.Behavior = core.Behavior(behavior)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("query", err)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

// ==== UserStore implementation ====

// UpsertUser creates the user or refreshes its name.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id, name string) error {
	query := `
		INSERT INTO users (id, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, status, updated_at
		FROM users
		WHERE id = ?
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// UpdateUserStatus sets a user's status and reports whether it changed.
// Unknown users are offline, so only going online creates a row.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, id string, status core.PresenceStatus) (bool, error) {
	now := time.Now().UnixNano()

	var (
		query string
		args  []any
	)
	switch status {
	case core.StatusOnline:
		query = `
			INSERT INTO users (id, status, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
			WHERE users.status <> excluded.status
		`
		args = []any{id, string(status), now}
	case core.StatusOffline:
		query = `
			UPDATE users SET status = ?, updated_at = ?
			WHERE id = ? AND status <> ?
		`
		args = []any{string(status), now, id, string(status)}
	default:
		return false, fmt.Errorf("unknown status %q", status)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update user status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListUsersByStatus lists users with the given status ordered by ID.
func (s *SQLiteStore) ListUsersByStatus(ctx context.Context, status core.PresenceStatus) ([]*store.User, error) {
	query := `
		SELECT id, name, status, updated_at
		FROM users
		WHERE status = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var (
		user      store.User
		status    string
		updatedAt int64
	)
	if err := row.Scan(&user.ID, &user.Name, &status, &updatedAt); err != nil {
		return nil, err
	}
	user.Status = core.PresenceStatus(status)
	user.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &user, nil
}
