package notify

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const defaultUnreadKey = "console:unread"

// RedisMirror keeps a hash of session id -> unread count, so a separate
// indicator process can render the global badge.
type RedisMirror struct {
	client *redis.Client
	key    string
}

func NewRedisMirror(client *redis.Client, key string) *RedisMirror {
	if key == "" {
		key = defaultUnreadKey
	}
	return &RedisMirror{client: client, key: key}
}

func (m *RedisMirror) SetUnread(ctx context.Context, sessionID string, n int) error {
	if n <= 0 {
		return m.client.HDel(ctx, m.key, sessionID).Err()
	}
	return m.client.HSet(ctx, m.key, sessionID, strconv.Itoa(n)).Err()
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
