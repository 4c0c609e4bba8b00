package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

const defaultKey = "tasas:pipeline:run-lock"

// releaseScript deletes the key only when held by this instance,
// so an expired lease can never release a successor's lock
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLock is a Lock backed by a shared redis instance,
// giving mutual exclusion across worker processes
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
}

// NewRedisLock creates a redis-backed run lock.
// An empty key uses the default pipeline lock key
func NewRedisLock(client *redis.Client, key string) *RedisLock {
	if key == "" {
		key = defaultKey
	}

	return &RedisLock{
		client: client,
		key:    key,
		token:  xid.New().String(),
	}
}

func (l *RedisLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("unable to acquire run lock: %w", err)
	}

	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("unable to release run lock: %w", err)
	}

	return nil
}
