// Package cache holds redis-backed short-lived coordination state.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 30 * time.Second

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out expiring SET NX locks.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a locker whose keys are "<prefix>:<key>".
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// TryLock acquires the lock for key. ok is false when another holder has it.
// The returned token must be passed to Release.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.lockKey(key), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.lockKey(key)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}

func (l *RedisLocker) lockKey(key string) string {
	return l.prefix + ":" + key
}
