package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore stores values as plain strings under "<namespace>:<key>".
// Values never expire.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "kilamate"
	}
	return &RedisStore{client: client, namespace: namespace}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return data, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(key string) string {
	return s.namespace + ":" + key
}
