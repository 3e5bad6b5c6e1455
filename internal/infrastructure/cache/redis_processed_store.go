package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ledger:processed:"

// RedisProcessedEventStore remembers handled event ids in Redis so that
// every consumer instance shares them
type RedisProcessedEventStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisProcessedEventStore creates a store on a shared client
func NewRedisProcessedEventStore(client redis.UniversalClient, keyPrefix string) *RedisProcessedEventStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisProcessedEventStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed uses SET NX with the TTL, so the check and the mark are one step
func (s *RedisProcessedEventStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return ok, nil
}

// IsProcessed checks if an event has already been processed
func (s *RedisProcessedEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if event is processed: %w", err)
	}
	return n > 0, nil
}

// Forget removes the mark of eventID
func (s *RedisProcessedEventStore) Forget(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.keyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to forget event: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller
func (s *RedisProcessedEventStore) Close() error {
	return nil
}

var _ shared.ProcessedEventStore = (*RedisProcessedEventStore)(nil)
