package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, letting several processes share one
// cache. Entries are written without a Redis TTL: staleness is decided by the
// cache's ExpirationPolicy, so an expired entry stays readable until the next
// successful refresh overwrites it.
type RedisStore struct {
	redis *redis.Client
	keys  keyspace
}

// NewRedisStore creates a RedisStore. prefix namespaces all keys; an empty
// prefix uses DefaultKeyPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		keys:  newKeyspace(prefix),
	}
}

// Get retrieves the entry for key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.keys.entry(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// Set stores entry under key and records key in the index set.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.keys.entry(key), data, 0)
	pipe.SAdd(ctx, s.keys.index(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Len returns the number of request keys stored under this prefix.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.redis.SCard(ctx, s.keys.index()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return int(n), nil
}
