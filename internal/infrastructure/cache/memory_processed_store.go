package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
)

const defaultSweepInterval = 5 * time.Minute

// InMemoryProcessedEventStore remembers processed event ids in process
// memory. Marks do not survive a restart and are not shared between
// instances, so it only backs single-process deployments and tests.
type InMemoryProcessedEventStore struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewInMemoryProcessedEventStore starts a background sweep dropping expired
// marks every interval. Close stops it.
func NewInMemoryProcessedEventStore(interval time.Duration) *InMemoryProcessedEventStore {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &InMemoryProcessedEventStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.sweepEvery(ctx, interval)
	return s
}

// MarkProcessed reports true when eventID had no live mark and records one
// expiring after ttl.
func (s *InMemoryProcessedEventStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expiry[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[eventID] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryProcessedEventStore) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	delete(s.expiry, eventID)
	s.mu.Unlock()
	return nil
}

// IsProcessed reports whether eventID carries a live mark
func (s *InMemoryProcessedEventStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiry[eventID]
	return ok && s.now().Before(exp), nil
}

// Size counts the marks held, expired ones not yet swept included
func (s *InMemoryProcessedEventStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

// Close stops the sweep and waits for it to exit. Repeated calls are no-ops.
func (s *InMemoryProcessedEventStore) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *InMemoryProcessedEventStore) sweepEvery(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryProcessedEventStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, id)
		}
	}
}

var _ shared.ProcessedEventStore = (*InMemoryProcessedEventStore)(nil)
