package lock

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
)

type heldLock struct {
	token     uuid.UUID
	expiresAt time.Time
}

// MemoryLocker is a single-process locker for development and tests
type MemoryLocker struct {
	mu        sync.Mutex
	locks     map[string]heldLock
	maxWait   time.Duration
	retryStep time.Duration
	now       func() time.Time
}

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker(maxWait, retryStep time.Duration) *MemoryLocker {
	if retryStep <= 0 {
		retryStep = 10 * time.Millisecond
	}
	return &MemoryLocker{
		locks:     make(map[string]heldLock),
		maxWait:   maxWait,
		retryStep: retryStep,
		now:       time.Now,
	}
}

// Acquire obtains key for ttl, polling until maxWait
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (shared.Lease, error) {
	deadline := l.now().Add(l.maxWait)
	for {
		if token, ok := l.tryAcquire(key, ttl); ok {
			return &memoryLease{locker: l, key: key, token: token}, nil
		}
		if !l.now().Before(deadline) {
			return nil, shared.ErrLockNotObtained
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryStep):
		}
	}
}

func (l *MemoryLocker) tryAcquire(key string, ttl time.Duration) (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.locks[key]; ok && now.Before(h.expiresAt) {
		return uuid.Nil, false
	}
	token := uuid.New()
	l.locks[key] = heldLock{token: token, expiresAt: now.Add(ttl)}
	return token, true
}

func (l *MemoryLocker) release(key string, token uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// only the holder may release; an expired lock may belong to someone else now
	if h, ok := l.locks[key]; ok && h.token == token {
		delete(l.locks, key)
	}
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  uuid.UUID
}

func (l *memoryLease) Key() string { return l.key }

func (l *memoryLease) Release(context.Context) error {
	l.locker.release(l.key, l.token)
	return nil
}

// NoopLocker grants every lock immediately
type NoopLocker struct{}

// Acquire always succeeds
func (NoopLocker) Acquire(_ context.Context, key string, _ time.Duration) (shared.Lease, error) {
	return noopLease(key), nil
}

type noopLease string

func (l noopLease) Key() string                 { return string(l) }
func (noopLease) Release(context.Context) error { return nil }

var (
	_ shared.Locker = (*MemoryLocker)(nil)
	_ shared.Locker = NoopLocker{}
)
