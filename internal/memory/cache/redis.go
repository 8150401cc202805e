package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaydesk/relaydesk/internal/memory"
)

// RedisStore is a Redis-backed fast cache for multi-process deployments.
//
// Graceful fallback: a broken Redis reports misses and failed writes instead
// of errors, so routing keeps working with empty context.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an injected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements memory.CacheStore.
func (s *RedisStore) Get(ctx context.Context, key string) (*memory.SessionMemory, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Cache] Redis get failed (%s): %v", key, err)
		}
		return nil, false
	}
	var mem memory.SessionMemory
	if err := json.Unmarshal([]byte(val), &mem); err != nil {
		log.Printf("[Cache] Redis entry parse failed (%s): %v", key, err)
		return nil, false
	}
	return &mem, true
}

// Set implements memory.CacheStore.
func (s *RedisStore) Set(ctx context.Context, key string, mem *memory.SessionMemory, ttl time.Duration) bool {
	data, err := json.Marshal(mem)
	if err != nil {
		log.Printf("[Cache] Redis marshal failed (%s): %v", key, err)
		return false
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("[Cache] Redis set failed (%s): %v", key, err)
		return false
	}
	return true
}

// Delete implements memory.CacheStore.
func (s *RedisStore) Delete(ctx context.Context, key string) bool {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		log.Printf("[Cache] Redis del failed (%s): %v", key, err)
		return false
	}
	return true
}
