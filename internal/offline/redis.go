package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps each cache as a hash of request key to JSON response.
// Cache names are tracked in a set so Names does not need to scan.
type RedisStorage struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStorage creates storage under "<namespace>:cache:*".
func NewRedisStorage(client redis.UniversalClient, namespace string) *RedisStorage {
	if namespace == "" {
		namespace = "kilamate"
	}
	return &RedisStorage{client: client, namespace: namespace}
}

func (s *RedisStorage) namesKey() string {
	return s.namespace + ":caches"
}

func (s *RedisStorage) hashKey(name string) string {
	return s.namespace + ":cache:" + name
}

// Open registers the cache name and returns a handle to it.
func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	if err := s.client.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", name, err)
	}
	return &redisCache{client: s.client, name: name, key: s.hashKey(name)}, nil
}

// Names lists the caches in lexical order.
func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the cache and its entries.
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.hashKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting cache %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

type redisCache struct {
	client redis.UniversalClient
	name   string
	key    string
}

func (c *redisCache) Name() string { return c.name }

func (c *redisCache) Match(ctx context.Context, req Request) (*Response, error) {
	data, err := c.client.HGet(ctx, c.key, req.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("matching %s in %s: %w", req.Key(), c.name, err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding cached %s: %w", req.Key(), err)
	}
	return &resp, nil
}

func (c *redisCache) Put(ctx context.Context, req Request, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", req.Key(), err)
	}
	if err := c.client.HSet(ctx, c.key, req.Key(), data).Err(); err != nil {
		return fmt.Errorf("storing %s in %s: %w", req.Key(), c.name, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, req Request) (bool, error) {
	n, err := c.client.HDel(ctx, c.key, req.Key()).Result()
	if err != nil {
		return false, fmt.Errorf("deleting %s from %s: %w", req.Key(), c.name, err)
	}
	return n > 0, nil
}

func (c *redisCache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.client.HKeys(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", c.name, err)
	}
	sort.Strings(keys)
	return keys, nil
}
