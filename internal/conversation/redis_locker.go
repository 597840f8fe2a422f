package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix      = "conversation:lock:"
	defaultLockLease   = 30 * time.Second
	defaultLockBackoff = 25 * time.Millisecond
	maxLockBackoff     = 250 * time.Millisecond
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes a phone's messages across API instances with a
// SET NX lease. The lease bounds how long a crashed holder blocks the phone.
type RedisLocker struct {
	redis *redis.Client
	lease time.Duration
	wait  time.Duration
}

func NewRedisLocker(client *redis.Client, lease, wait time.Duration) *RedisLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if lease <= 0 {
		lease = defaultLockLease
	}
	return &RedisLocker{redis: client, lease: lease, wait: wait}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := lockKeyPrefix + key

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	backoff := defaultLockBackoff
	for {
		ok, err := l.redis.SetNX(ctx, lockKey, token, l.lease).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("conversation: failed to acquire lock: %w", err)
		}
		if ok {
			return func() {
				// Release with a fresh context: the caller's may already be done.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseLockScript.Run(releaseCtx, l.redis, []string{lockKey}, token).Err()
			}, nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff < maxLockBackoff {
			backoff *= 2
		}
	}
}
