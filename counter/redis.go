package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis so counters survive restarts and stay
// consistent across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis configuration for counters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "lexia:counter:",
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
	}
}

// Incr increments the counter by one atomically.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.Add(ctx, key, 1, ttl)
}

// Add increments the counter atomically, arming the expiry on first use.
func (s *RedisStore) Add(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	full := s.prefix + key

	val, err := s.client.IncrBy(ctx, full, n).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if val == n && ttl > 0 {
		if err := s.client.Expire(ctx, full, ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to arm counter expiry: %w", err)
		}
	}
	return val, nil
}

// Peek returns the current counter value.
func (s *RedisStore) Peek(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return val, nil
}

// Reset deletes the counter.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete counter: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
