package shared

import (
	"context"
	"time"
)

// Lease is a held lock
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker acquires best-effort named locks that expire after ttl.
// It is a contention optimization; row locks inside the transaction remain
// the correctness boundary.
type Locker interface {
	// Acquire returns ErrLockNotObtained when the key stays held past the
	// provider's bounded wait
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
