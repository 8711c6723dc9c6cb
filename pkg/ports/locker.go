package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// RefreshFunc pushes the expiry of a held lock ttl into the future.
// It fails once the lock is no longer held by the caller.
type RefreshFunc func(ctx context.Context, ttl time.Duration) error

// DistributedLocker defines the interface for distributed concurrency control.
// The controller uses it to hold a camera exclusively while a session owns its stream,
// even when several booth processes share one device.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (e.g., camera device).
	// It blocks until the lock is acquired or the context is canceled.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// LeaseLocker is a DistributedLocker whose locks can outlive their first TTL.
// Holders keep a lease alive by calling the RefreshFunc before the TTL runs out.
type LeaseLocker interface {
	DistributedLocker
	LockLease(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, RefreshFunc, error)
}
