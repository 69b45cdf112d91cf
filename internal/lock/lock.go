package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/triage/common/id"
)

// ErrLockHeld is returned when another pass already owns the conversation.
var ErrLockHeld = errors.New("conversation lock held")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// ConversationLock serialises triage passes per conversation across workers.
type ConversationLock struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

func NewConversationLock(client redisClient, prefix string, ttl time.Duration) *ConversationLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ConversationLock{client: client, prefix: prefix, ttl: ttl}
}

// Acquire takes the lock and returns its release func. Release uses a fresh
// context so a cancelled pass still frees the key.
func (l *ConversationLock) Acquire(ctx context.Context, conversationID int64) (func(), error) {
	key := l.key(conversationID)
	token := strconv.FormatInt(id.New(), 10)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

func (l *ConversationLock) key(conversationID int64) string {
	return fmt.Sprintf("%s:lock:conversation:%d", l.prefix, conversationID)
}
