package domain

import (
	"context"
	"time"
)

// Lease is a held distributed lock.
type Lease interface {
	// Refresh extends the lease by its original TTL. It returns ErrLockHeld
	// when the lease was lost to another holder.
	Refresh(ctx context.Context) error
	// Release gives the lock up. It is safe to call more than once.
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// EventBus publishes trade events for outside consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
