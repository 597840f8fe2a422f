package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const stateKeyPrefix = "conversation:state:"

// RedisStore keeps conversation state as JSON with a TTL equal to the
// inactivity window, so abandoned conversations expire on their own.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	now    Clock
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration, clock Clock) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		now:    clock,
		tracer: otel.Tracer("salon.internal.conversation.state"),
	}
}

func stateKey(phone string) string {
	return stateKeyPrefix + phone
}

func (s *RedisStore) Load(ctx context.Context, phone string) (*ConversationState, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}

	var state ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	// The key TTL follows wall time; the injected clock is authoritative.
	if state.Expired(s.now(), s.ttl) {
		if err := s.redis.Del(ctx, stateKey(phone)).Err(); err != nil {
			span.RecordError(err)
		}
		return nil, nil
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, state *ConversationState) error {
	if state == nil || state.Phone == "" {
		return errMissingPhone
	}
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.Phone), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, stateKey(phone)).Err(); err != nil {
		return fmt.Errorf("conversation: failed to delete state: %w", err)
	}
	return nil
}

// ActiveCount scans state keys. Expired keys are already gone from Redis.
func (s *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	count := 0
	iter := s.redis.Scan(ctx, 0, stateKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("conversation: failed to count active conversations: %w", err)
	}
	return count, nil
}
