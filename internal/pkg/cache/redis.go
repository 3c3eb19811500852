// Package cache is a thin namespaced key/value cache on top of redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get reports found=false on a miss; err is reserved for redis failures.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Delete(ctx context.Context, keys ...string) error
	GenerateKey(kind, id string) string
}

type redisCache struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCache dials addr lazily; the first command opens the connection.
func NewRedisCache(addr, namespace string) Cache {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr}), namespace)
}

func NewFromClient(client redis.UniversalClient, namespace string) Cache {
	return &redisCache{client: client, namespace: namespace}
}

func (r *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// GenerateKey builds "<namespace>:<kind>:<id>".
func (r *redisCache) GenerateKey(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.namespace, kind, id)
}
