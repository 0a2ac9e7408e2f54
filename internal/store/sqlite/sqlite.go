package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Schema creates the messages table when it does not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room       TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	client_id  TEXT NOT NULL,
	username   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (room, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_room_seq ON messages(room, seq DESC);
`

// SQLiteStore implements store.MessageStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert appends a message to the room log.
func (s *SQLiteStore) Insert(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, room, seq, client_id, username, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Room, msg.Seq, msg.ClientID, msg.Username, msg.Body, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit newest messages of a room, oldest-first.
func (s *SQLiteStore) QueryRecent(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, room, seq, client_id, username, body, created_at
		FROM messages
		WHERE room = ?
		ORDER BY seq DESC
		LIMIT ?
	`
	return s.queryMessages(ctx, query, room, limit)
}

// QueryPage returns one page of a room log counting back from the newest message.
func (s *SQLiteStore) QueryPage(ctx context.Context, room string, page, pageSize int) ([]*store.Message, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("query page: invalid page size %d", pageSize)
	}
	query := `
		SELECT id, room, seq, client_id, username, body, created_at
		FROM messages
		WHERE room = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`
	return s.queryMessages(ctx, query, room, pageSize, store.PageOffset(page, pageSize))
}

// CountMessages returns the number of persisted messages in a room.
func (s *SQLiteStore) CountMessages(ctx context.Context, room string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room = ?`, room).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.Room,
			&msg.Seq,
			&msg.ClientID,
			&msg.Username,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Rows come newest-first.
	store.Reverse(messages)
	return messages, nil
}
