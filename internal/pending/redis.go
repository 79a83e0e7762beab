package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ensure RedisStore implements the Store interface
var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "resume:"

// RedisStore persists resume contexts in Redis. Expiry is delegated to
// Redis key TTLs, so DeleteExpired is a no-op.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store and verifies connectivity
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func redisKey(journeyID string) string {
	return redisKeyPrefix + journeyID
}

// Put stores or replaces the context, bounded by the store TTL
func (s *RedisStore) Put(ctx context.Context, rc *ResumeContext) error {
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshaling resume context: %w", err)
	}

	ttl := s.ttl
	if !rc.ExpiresAt.IsZero() {
		if remaining := time.Until(rc.ExpiresAt); remaining > 0 {
			ttl = remaining
		}
	}

	if err := s.client.Set(ctx, redisKey(rc.JourneyID), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing resume context: %w", err)
	}
	return nil
}

// Get retrieves a context, or ErrContextNotFound
func (s *RedisStore) Get(ctx context.Context, journeyID string) (*ResumeContext, error) {
	data, err := s.client.Get(ctx, redisKey(journeyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrContextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching resume context: %w", err)
	}

	var rc ResumeContext
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("unmarshaling resume context: %w", err)
	}
	if rc.Expired(time.Now()) {
		return nil, ErrContextNotFound
	}
	return &rc, nil
}

// Delete removes a context
func (s *RedisStore) Delete(ctx context.Context, journeyID string) error {
	if err := s.client.Del(ctx, redisKey(journeyID)).Err(); err != nil {
		return fmt.Errorf("deleting resume context: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis expires keys natively
func (s *RedisStore) DeleteExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Count reports how many contexts are stored
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scanning resume contexts: %w", err)
	}
	return count, nil
}

// Close releases the underlying Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
