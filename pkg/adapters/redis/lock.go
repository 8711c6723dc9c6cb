// Package redis holds camera ownership locks in Redis so that booth processes
// sharing one device never open it at the same time.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/photobooth/pkg/ports"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
	// ErrLockLost is returned when refreshing a lock that expired or changed hands.
	ErrLockLost = errors.New("distributed lock no longer held")
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const refreshScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client   backend.UniversalClient
	prefix   string
	interval time.Duration
	release  *backend.Script
	refresh  *backend.Script
}

var _ ports.LeaseLocker = (*Locker)(nil)

// Option configures the Locker.
type Option func(*Locker)

// WithRetryInterval sets how often a held lock is polled.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.interval = d
		}
	}
}

// NewLocker creates a new Redis locker. Keys are stored as prefix + "lock:" + key.
func NewLocker(client backend.UniversalClient, prefix string, opts ...Option) *Locker {
	l := &Locker{
		client:   client,
		prefix:   prefix,
		interval: 100 * time.Millisecond,
		release:  backend.NewScript(releaseScript),
		refresh:  backend.NewScript(refreshScript),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewFromURL parses a redis:// URL and creates a locker on a fresh client.
func NewFromURL(url, prefix string, opts ...Option) (*Locker, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewLocker(backend.NewClient(o), prefix, opts...), nil
}

// Ping checks the connection.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	return l.client.Close()
}

// Lock acquires a distributed lock for the given key using Redis SET NX PX.
// The value is a random token, so only the holder can release it.
// It polls until the lock is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	unlock, _, err := l.LockLease(ctx, key, ttl)
	return unlock, err
}

// LockLease acquires the lock like Lock and also returns a RefreshFunc that resets
// its TTL as long as the token still matches.
func (l *Locker) LockLease(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, ports.RefreshFunc, error) {
	lockKey := l.prefix + "lock:" + key
	val := uuid.NewString()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, val, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("%w: %s: %w", ErrLockAcquire, key, ctx.Err())
			}
			return nil, nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			unlock := func(ctx context.Context) error {
				return l.release.Run(ctx, l.client, []string{lockKey}, val).Err()
			}
			refresh := func(ctx context.Context, ttl time.Duration) error {
				n, err := l.refresh.Run(ctx, l.client, []string{lockKey}, val, ttl.Milliseconds()).Int()
				if err != nil {
					return fmt.Errorf("refresh lock %s: %w", key, err)
				}
				if n == 0 {
					return fmt.Errorf("%w: %s", ErrLockLost, key)
				}
				return nil
			}
			return unlock, refresh, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrLockAcquire, key, ctx.Err())
		case <-ticker.C:
		}
	}
}
