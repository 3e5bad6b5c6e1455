package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ledger:lock:"

// RedisLocker grants locks through Redis so that every instance sees them
type RedisLocker struct {
	client    *redislock.Client
	maxWait   time.Duration
	retryStep time.Duration
}

// NewRedisLocker creates a locker on client. Acquire retries every
// retryStep until maxWait has passed.
func NewRedisLocker(client redis.UniversalClient, maxWait, retryStep time.Duration) *RedisLocker {
	if retryStep <= 0 {
		retryStep = 50 * time.Millisecond
	}
	return &RedisLocker{
		client:    redislock.New(client),
		maxWait:   maxWait,
		retryStep: retryStep,
	}
}

// Acquire obtains key for ttl
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (shared.Lease, error) {
	retries := int(l.maxWait / l.retryStep)
	lk, err := l.client.Obtain(ctx, keyPrefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.retryStep), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return &redisLease{key: key, lock: lk}, nil
}

type redisLease struct {
	key  string
	lock *redislock.Lock
}

func (l *redisLease) Key() string { return l.key }

// Release is a no-op once the lock has expired or been taken over
func (l *redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

var _ shared.Locker = (*RedisLocker)(nil)
