package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentLockKey returns the locker key of a document
func DocumentLockKey(tenantID uuid.UUID, docType string, id uuid.UUID) string {
	return fmt.Sprintf("doc:%s:%s:%s", tenantID, docType, id)
}

// WithLocks runs fn while holding best-effort locks on keys.
//
// Keys are deduplicated and acquired in sorted order, then released in
// reverse. When a lock cannot be obtained within the locker's bounded wait,
// or the lock store fails, fn still runs without the remaining locks: row
// locks inside the transaction keep conflicting writes serialized.
func WithLocks(ctx context.Context, locker shared.Locker, logger *zap.Logger, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error {
	keys = normalizeKeys(keys)

	held := make([]shared.Lease, 0, len(keys))
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil {
				logger.Warn("Failed to release resource lock",
					zap.String("lock_key", held[i].Key()),
					zap.Error(err))
			}
		}
	}()

	for _, key := range keys {
		lease, err := locker.Acquire(ctx, key, ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("Proceeding without resource lock",
				zap.String("lock_key", key),
				zap.Bool("contended", errors.Is(err, shared.ErrLockNotObtained)),
				zap.Int("held", len(held)),
				zap.Int("requested", len(keys)),
				zap.Error(err))
			break
		}
		held = append(held, lease)
	}

	return fn(ctx)
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
