package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL covers Twilio's webhook retry window with room to spare.
const DefaultDedupeTTL = 24 * time.Hour

// Deduper remembers MessageSid values so a retried webhook is handled once.
type Deduper interface {
	// FirstSeen records id and reports whether this is its first delivery.
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// RedisDeduper records ids with SET NX and a TTL.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("messaging: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, prefix: "salon:sms:seen:", ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("messaging: dedupe %s: %w", id, err)
	}
	return ok, nil
}

// MemoryDeduper is the single-process Deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if expires, ok := d.seen[id]; ok && now.Before(expires) {
		return false, nil
	}
	d.seen[id] = now.Add(d.ttl)
	if len(d.seen) > 1024 {
		for key, expires := range d.seen {
			if !now.Before(expires) {
				delete(d.seen, key)
			}
		}
	}
	return true, nil
}
