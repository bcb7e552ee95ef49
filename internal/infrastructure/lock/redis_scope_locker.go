// Package lock provides the scope locks that serialize batch fixes across
// service instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appintegrity "github.com/farmerp/backend/internal/application/integrity"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "farmerp:lock:"

// RedisScopeLocker implements ScopeLocker with a redis lease. A crashed
// holder loses the lock when its TTL runs out.
type RedisScopeLocker struct {
	client    *redis.Client
	locker    *redislock.Client
	keyPrefix string
}

// NewRedisScopeLocker connects to redis and verifies the connection
func NewRedisScopeLocker(ctx context.Context, opts *redis.Options) (*RedisScopeLocker, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisScopeLockerWithClient(client, ""), nil
}

// NewRedisScopeLockerWithClient wraps an existing client
func NewRedisScopeLockerWithClient(client *redis.Client, keyPrefix string) *RedisScopeLocker {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisScopeLocker{
		client:    client,
		locker:    redislock.New(client),
		keyPrefix: keyPrefix,
	}
}

// Obtain takes the lock for key without waiting. A held lock yields
// appintegrity.ErrScopeLocked.
func (l *RedisScopeLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (appintegrity.ReleaseFunc, error) {
	lock, err := l.locker.Obtain(ctx, l.keyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, appintegrity.ErrScopeLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain scope lock %q: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired before release
			return nil
		}
		return err
	}, nil
}

// Close closes the redis client
func (l *RedisScopeLocker) Close() error {
	return l.client.Close()
}

var _ appintegrity.ScopeLocker = (*RedisScopeLocker)(nil)
