package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vovakirdan/roomchat/internal/store"
)

const keyPrefix = "roomchat:messages:"

// RedisStore keeps each room log as a capped Redis list of JSON documents.
type RedisStore struct {
	client    *redis.Client
	retention int64
}

// New connects to redisURL. retention caps each room list; zero keeps everything.
func New(ctx context.Context, redisURL string, retention int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, retention: int64(retention)}, nil
}

type document struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	Seq       int64  `json:"seq"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// Insert appends msg to the room list and trims it to the retention cap.
func (s *RedisStore) Insert(ctx context.Context, msg *store.Message) error {
	data, err := json.Marshal(document{
		ID:        msg.ID,
		Room:      msg.Room,
		Seq:       msg.Seq,
		ClientID:  msg.ClientID,
		Username:  msg.Username,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := roomKey(msg.Room)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.retention > 0 {
		pipe.LTrim(ctx, key, -s.retention, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit newest messages, oldest-first.
func (s *RedisStore) QueryRecent(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}
	return s.lrange(ctx, room, -int64(limit), -1)
}

// QueryPage returns one page counting back from the newest message.
func (s *RedisStore) QueryPage(ctx context.Context, room string, page, pageSize int) ([]*store.Message, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("query page: invalid page size %d", pageSize)
	}
	offset := int64(store.PageOffset(page, pageSize))
	stop := -offset - 1
	start := -offset - int64(pageSize)
	return s.lrange(ctx, room, start, stop)
}

// CountMessages returns the length of the room list.
func (s *RedisStore) CountMessages(ctx context.Context, room string) (int64, error) {
	n, err := s.client.LLen(ctx, roomKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) lrange(ctx context.Context, room string, start, stop int64) ([]*store.Message, error) {
	raw, err := s.client.LRange(ctx, roomKey(room), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(raw))
	for _, item := range raw {
		var doc document
		if err := json.Unmarshal([]byte(item), &doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, doc.message())
	}
	return messages, nil
}

func (d document) message() *store.Message {
	return &store.Message{
		ID:        d.ID,
		Room:      d.Room,
		Seq:       d.Seq,
		ClientID:  d.ClientID,
		Username:  d.Username,
		Body:      d.Body,
		CreatedAt: time.Unix(0, d.CreatedAt).UTC(),
	}
}

func roomKey(room string) string {
	return keyPrefix + room
}
