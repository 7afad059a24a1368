package utils

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/avalia/dashboard_backend/config"
	"github.com/bsm/redislock"
)

var ErrLockNotObtained = errors.New("lock not obtained")

// RedisCache stores JSON values through the global redis client. Every method is a no-op
// while Redis is not connected.
type RedisCache struct {
	Prefix string
}

func (c RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	return config.GetRedisObject(ctx, c.Prefix+key, dest)
}

func (c RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return config.SetRedisObject(ctx, c.Prefix+key, value, ttl)
}

func (c RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.Prefix + k
	}
	return config.RemoveRedisKey(ctx, prefixed...)
}

// RedisLocker takes short-lived distributed locks with redislock.
type RedisLocker struct {
	Client *redislock.Client
}

// Lock obtains key for ttl, retrying briefly. It returns ErrLockNotObtained when another
// holder keeps the lock.
func (l RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.Client == nil {
		return nil, errors.New("redis lock client not ready")
	}
	lock, err := l.Client.Obtain(ctx, "lock:"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// release with a fresh context; the request may already be cancelled
		_ = lock.Release(context.Background())
	}, nil
}
