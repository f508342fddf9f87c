// Package redisstore implements the reserve and dedup stores on Redis.
// Every compound operation runs as one Lua script so concurrent callers
// racing on the same key are totally ordered server-side; there is no
// read-then-write anywhere in this package.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// casMoveScript verifies the source key still holds the expected value, then
// writes the destination and deletes the source in the same atomic step.
// KEYS[1] = source key
// KEYS[2] = destination key
// ARGV[1] = expected source value
// ARGV[2] = new destination value
// ARGV[3] = destination TTL (ms)
var casMoveScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
    return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("DEL", KEYS[1])
return 1
`)

// deleteIfValueScript deletes the key only when its value matches.
// KEYS[1] = key
// ARGV[1] = expected value
var deleteIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store implements the reserve store on a shared Redis client. The client is
// injected so tests and local runs can substitute other implementations of
// the same interface.
type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func (s *Store) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *Store) CompareAndSwapMove(ctx context.Context, srcKey, expected, dstKey, newValue string, ttl time.Duration) (bool, error) {
	res, err := casMoveScript.Run(ctx, s.client, []string{srcKey, dstKey}, expected, newValue, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis cas-move %s -> %s: %w", srcKey, dstKey, err)
	}
	return res == 1, nil
}

func (s *Store) DeleteIfValue(ctx context.Context, key, expected string) (bool, error) {
	res, err := deleteIfValueScript.Run(ctx, s.client, []string{key}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("redis delete-if-value %s: %w", key, err)
	}
	return res == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) ExtendTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.PExpire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis pexpire %s: %w", key, err)
	}
	return ok, nil
}
