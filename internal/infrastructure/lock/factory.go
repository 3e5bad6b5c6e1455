package lock

import (
	"fmt"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lock drivers accepted by NewLocker
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
	DriverNoop   = "noop"
)

// NewLocker builds the locker selected by cfg.Driver. The redis driver
// needs client; without one it falls back to the in-memory locker.
func NewLocker(cfg config.LockConfig, client redis.UniversalClient, logger *zap.Logger) (shared.Locker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case DriverRedis, "":
		if client == nil {
			logger.Warn("Redis client unavailable, using in-process locker; locks are not shared between instances")
			return NewMemoryLocker(cfg.MaxWait, cfg.RetryStep), nil
		}
		return NewRedisLocker(client, cfg.MaxWait, cfg.RetryStep), nil
	case DriverMemory:
		return NewMemoryLocker(cfg.MaxWait, cfg.RetryStep), nil
	case DriverNoop:
		return NoopLocker{}, nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}
