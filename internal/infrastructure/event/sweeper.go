package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"go.uber.org/zap"
)

// SweeperConfig holds configuration for the outbox sweeper
type SweeperConfig struct {
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		PollInterval:     2 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Sweeper republishes every outbox row the fast path did not deliver
type Sweeper struct {
	relay     *Relay
	repo      shared.OutboxRepository
	config    SweeperConfig
	batchSize int
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new sweeper
func NewSweeper(relay *Relay, repo shared.OutboxRepository, config SweeperConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSweeperConfig().PollInterval
	}
	return &Sweeper{
		relay:     relay,
		repo:      repo,
		config:    config,
		batchSize: relay.config.BatchSize,
		logger:    logger,
	}
}

// Start starts the background loops
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	if s.config.CleanupEnabled && s.config.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(ctx)
	}

	s.logger.Info("outbox sweeper started",
		zap.Int("batch_size", s.batchSize),
		zap.Duration("poll_interval", s.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the sweeper
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("outbox sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Drain(ctx)
		}
	}
}

// Drain sweeps until a batch comes back short or ctx ends
func (s *Sweeper) Drain(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := s.relay.SweepOnce(ctx)
		if err != nil {
			s.logger.Error("failed to claim due outbox entries", zap.Error(err))
			return total
		}
		total += n
		if n < s.batchSize {
			break
		}
	}
	return total
}

func (s *Sweeper) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

// cleanup removes published entries older than the retention
func (s *Sweeper) cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.CleanupRetention)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
