package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/vovakirdan/roomchat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room       TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	client_id  TEXT NOT NULL,
	username   TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (room, seq)
);

CREATE INDEX IF NOT EXISTS idx_messages_room_seq ON messages(room, seq DESC);
`

// PostgresStore implements store.MessageStore on PostgreSQL via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// New connects to PostgreSQL using dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Insert appends a message to the room log.
func (s *PostgresStore) Insert(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, room, seq, client_id, username, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Room, msg.Seq, msg.ClientID, msg.Username, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit newest messages of a room, oldest-first.
func (s *PostgresStore) QueryRecent(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, room, seq, client_id, username, body, created_at
		FROM messages
		WHERE room = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	return s.queryMessages(ctx, query, room, limit)
}

// QueryPage returns one page of a room log counting back from the newest message.
func (s *PostgresStore) QueryPage(ctx context.Context, room string, page, pageSize int) ([]*store.Message, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("query page: invalid page size %d", pageSize)
	}
	query := `
		SELECT id, room, seq, client_id, username, body, created_at
		FROM messages
		WHERE room = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`
	return s.queryMessages(ctx, query, room, pageSize, store.PageOffset(page, pageSize))
}

// CountMessages returns the number of persisted messages in a room.
func (s *PostgresStore) CountMessages(ctx context.Context, room string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room = $1`, room).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Seq, &msg.ClientID, &msg.Username, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	store.Reverse(messages)
	return messages, nil
}

// truncate empties the messages table. Used by tests against a shared database.
func (s *PostgresStore) truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE messages`)
	return err
}
