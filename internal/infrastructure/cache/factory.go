package cache

import (
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewProcessedEventStore returns the Redis store when client is set and the
// in-memory store otherwise
func NewProcessedEventStore(client redis.UniversalClient, logger *zap.Logger) shared.ProcessedEventStore {
	if client != nil {
		logger.Info("using Redis processed-event store")
		return NewRedisProcessedEventStore(client, "")
	}
	logger.Warn("Redis unavailable, falling back to in-memory processed-event store. " +
		"Duplicate deliveries across instances are caught only by the durable consumer dedupe.")
	return NewInMemoryProcessedEventStore(0)
}
