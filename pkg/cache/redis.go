package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	RedisKeyGenerations = "offline:generations"
	redisKeyPrefix      = "offline:gen:"
)

// RedisStorage keeps generations in Redis so that every proxy instance
// shares the same cache, like tabs sharing one origin's cache storage.
type RedisStorage struct {
	redis *redis.Client
}

// NewRedisStorage creates a new cache backend with Redis.
func NewRedisStorage(redisClient *redis.Client) *RedisStorage {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStorage{
		redis: redisClient,
	}
}

func redisIndexKey(generation string) string {
	return redisKeyPrefix + generation + ":keys"
}

func redisEntryKey(generation string, key CacheKey) string {
	return redisKeyPrefix + generation + ":entry:" + key.String()
}

func (s *RedisStorage) Open(ctx context.Context, generation string) error {
	if err := s.redis.SAdd(ctx, RedisKeyGenerations, generation).Err(); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Put stores an entry without TTL; generations are removed as a whole.
func (s *RedisStorage) Put(ctx context.Context, generation string, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	entryKey := redisEntryKey(generation, key)
	pipe := s.redis.TxPipeline()
	pipe.SAdd(ctx, RedisKeyGenerations, generation)
	pipe.SAdd(ctx, redisIndexKey(generation), entryKey)
	pipe.Set(ctx, entryKey, data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStorage) Get(ctx context.Context, generation string, key CacheKey) (*CacheEntry, error) {
	data, err := s.redis.Get(ctx, redisEntryKey(generation, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

func (s *RedisStorage) Generations(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, RedisKeyGenerations).Result()
	if err != nil {
		CacheErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStorage) DeleteGeneration(ctx context.Context, generation string) (bool, error) {
	indexKey := redisIndexKey(generation)
	entryKeys, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis smembers: %w", err)
	}

	pipe := s.redis.TxPipeline()
	removed := pipe.SRem(ctx, RedisKeyGenerations, generation)
	if len(entryKeys) > 0 {
		pipe.Del(ctx, entryKeys...)
	}
	pipe.Del(ctx, indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis del: %w", err)
	}
	return removed.Val() > 0, nil
}

// Close is a no-op: the Redis client is owned by the caller.
func (s *RedisStorage) Close() error {
	return nil
}
