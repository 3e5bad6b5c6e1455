package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkFunc is the body of a command. Its return value is serialized into the
// idempotency record and handed back unchanged on replay.
type WorkFunc func(ctx context.Context, tx Tx) (any, error)

// Policy controls how the executor treats a key that is still in progress
type Policy struct {
	// InProgressTimeout is how long an IN_PROGRESS record is trusted before it is reclaimable
	InProgressTimeout time.Duration
	// RetryInProgress makes the executor wait for an in-flight duplicate instead of failing fast
	RetryInProgress bool
	// MaxWaitAttempts bounds the waits when RetryInProgress is set
	MaxWaitAttempts int
	// WaitBackoff is the first wait; later waits double
	WaitBackoff time.Duration
}

// DefaultPolicy returns the policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		InProgressTimeout: 5 * time.Minute,
		MaxWaitAttempts:   5,
		WaitBackoff:       100 * time.Millisecond,
	}
}

const maxWaitBackoff = 5 * time.Second

// Result is the outcome of an executed or replayed command
type Result struct {
	Response json.RawMessage
	Replayed bool
	EventIDs []uuid.UUID
}

// Decode unmarshals the response into v
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Response, v)
}

// cachedResponse is what an idempotency record stores
type cachedResponse struct {
	Response json.RawMessage `json:"response"`
	EventIDs []uuid.UUID     `json:"eventIds"`
}

var (
	errKeyTaken     = errors.New("idempotency key taken")
	errNotClaimable = errors.New("idempotency record not claimable")
)

// Executor runs commands at most once per (tenant, client key)
type Executor struct {
	scope  TransactionScope
	policy Policy
	logger *zap.Logger
	now    func() time.Time
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithClock overrides the executor's clock
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates a new Executor
func NewExecutor(scope TransactionScope, policy Policy, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	def := DefaultPolicy()
	if policy.InProgressTimeout <= 0 {
		policy.InProgressTimeout = def.InProgressTimeout
	}
	if policy.MaxWaitAttempts <= 0 {
		policy.MaxWaitAttempts = def.MaxWaitAttempts
	}
	if policy.WaitBackoff <= 0 {
		policy.WaitBackoff = def.WaitBackoff
	}
	e := &Executor{
		scope:  scope,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs work inside one transaction together with the idempotency record.
//
// A key already COMPLETED returns the cached response with Replayed set and
// does not run work. A key held IN_PROGRESS by a live attempt fails with
// ErrIdempotencyInProgress, or is waited on when the policy allows. FAILED and
// stale IN_PROGRESS records are reclaimed under a row lock. A key recorded
// for a different command fails with ErrIdempotencyKeyReused.
func (e *Executor) Execute(ctx context.Context, cc shared.CommandContext, command string, work WorkFunc) (*Result, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	cc.ClientKey = strings.TrimSpace(cc.ClientKey)
	ctx = shared.WithCommandContext(ctx, cc)
	log := e.logger.With(
		zap.String("tenant_id", cc.TenantID.String()),
		zap.String("idempotency_key", cc.ClientKey),
		zap.String("command", command),
	)

	waits := 0
	for attempt := 0; attempt < e.policy.MaxWaitAttempts+3; attempt++ {
		res, err := e.runFresh(ctx, cc, command, work)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, errKeyTaken) {
			e.handleWorkError(ctx, cc, command, err, log)
			return nil, err
		}

		existing, err := e.find(ctx, cc)
		if errors.Is(err, shared.ErrNotFound) {
			// the holder rolled back between our insert and read
			continue
		}
		if err != nil {
			return nil, err
		}
		if existing.Command != command {
			log.Warn("Idempotency key reused across commands", zap.String("recorded_command", existing.Command))
			return nil, keyReused(cc, existing)
		}

		switch {
		case existing.Status == shared.IdempotencyCompleted:
			log.Debug("Replaying completed command")
			return replay(existing)

		case existing.Claimable(e.now(), e.policy.InProgressTimeout):
			log.Info("Reclaiming idempotency record",
				zap.String("status", string(existing.Status)),
				zap.Int("attempts", existing.Attempts))
			res, err := e.runReclaim(ctx, cc, command, work)
			if errors.Is(err, errNotClaimable) {
				continue
			}
			if err != nil {
				e.handleWorkError(ctx, cc, command, err, log)
				return nil, err
			}
			return res, nil

		default:
			if !e.policy.RetryInProgress || waits >= e.policy.MaxWaitAttempts {
				return nil, shared.ErrIdempotencyInProgress.WithDetail("idempotency_key", cc.ClientKey)
			}
			wait := shared.Backoff(waits+1, e.policy.WaitBackoff, maxWaitBackoff)
			waits++
			log.Debug("Waiting for in-flight command", zap.Duration("wait", wait), zap.Int("wait_attempt", waits))
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, shared.ErrIdempotencyInProgress.WithDetail("idempotency_key", cc.ClientKey)
}

func (e *Executor) runFresh(ctx context.Context, cc shared.CommandContext, command string, work WorkFunc) (*Result, error) {
	var result *Result
	err := e.scope.Execute(ctx, func(tx Tx) error {
		rec := shared.NewIdempotencyRecord(cc.TenantID, cc.ClientKey, command, e.now())
		if err := tx.Idempotency().Create(ctx, rec); err != nil {
			if errors.Is(err, shared.ErrDuplicateKey) {
				return errKeyTaken
			}
			return fmt.Errorf("create idempotency record: %w", err)
		}
		res, err := e.runWork(ctx, tx, rec, work)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) runReclaim(ctx context.Context, cc shared.CommandContext, command string, work WorkFunc) (*Result, error) {
	var result *Result
	err := e.scope.Execute(ctx, func(tx Tx) error {
		rec, err := tx.Idempotency().FindByKeyForUpdate(ctx, cc.TenantID, cc.ClientKey)
		if errors.Is(err, shared.ErrNotFound) {
			return errNotClaimable
		}
		if err != nil {
			return err
		}
		if rec.Command != command {
			return keyReused(cc, rec)
		}
		if rec.Status == shared.IdempotencyCompleted {
			result, err = replay(rec)
			return err
		}
		if !rec.Claimable(e.now(), e.policy.InProgressTimeout) {
			return errNotClaimable
		}

		rec.Reclaim(e.now())
		if err := tx.Idempotency().Update(ctx, rec); err != nil {
			return fmt.Errorf("reclaim idempotency record: %w", err)
		}
		result, err = e.runWork(ctx, tx, rec, work)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// keyReused reports a key whose record belongs to another command. The
// record is left untouched.
func keyReused(cc shared.CommandContext, rec *shared.IdempotencyRecord) error {
	return shared.ErrIdempotencyKeyReused.
		WithDetail("idempotency_key", cc.ClientKey).
		WithDetail("recorded_command", rec.Command)
}

func (e *Executor) runWork(ctx context.Context, tx Tx, rec *shared.IdempotencyRecord, work WorkFunc) (*Result, error) {
	resp, err := work(ctx, tx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal command response: %w", err)
	}
	ids := tx.RecordedEventIDs()
	payload, err := json.Marshal(cachedResponse{Response: raw, EventIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal cached response: %w", err)
	}
	rec.Complete(payload, e.now())
	if err := tx.Idempotency().Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("complete idempotency record: %w", err)
	}
	return &Result{Response: raw, EventIDs: ids}, nil
}

func (e *Executor) find(ctx context.Context, cc shared.CommandContext) (*shared.IdempotencyRecord, error) {
	var rec *shared.IdempotencyRecord
	err := e.scope.Execute(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Idempotency().FindByKey(ctx, cc.TenantID, cc.ClientKey)
		return err
	})
	return rec, err
}

// handleWorkError keeps a FAILED record for integrity failures so operators
// can see them; the business transaction itself has already rolled back.
func (e *Executor) handleWorkError(ctx context.Context, cc shared.CommandContext, command string, workErr error, log *zap.Logger) {
	if !shared.IsKind(workErr, shared.KindIntegrity) {
		return
	}
	log.Error("Command failed with integrity error", zap.Error(workErr))

	ctx = context.WithoutCancel(ctx)
	err := e.scope.Execute(ctx, func(tx Tx) error {
		rec, err := tx.Idempotency().FindByKeyForUpdate(ctx, cc.TenantID, cc.ClientKey)
		if errors.Is(err, shared.ErrNotFound) {
			rec = shared.NewIdempotencyRecord(cc.TenantID, cc.ClientKey, command, e.now())
			rec.Fail(workErr.Error(), e.now())
			return tx.Idempotency().Create(ctx, rec)
		}
		if err != nil {
			return err
		}
		if rec.Status == shared.IdempotencyCompleted {
			return nil
		}
		rec.Fail(workErr.Error(), e.now())
		return tx.Idempotency().Update(ctx, rec)
	})
	if err != nil {
		log.Warn("Failed to persist FAILED idempotency record", zap.Error(err))
	}
}

func replay(rec *shared.IdempotencyRecord) (*Result, error) {
	var cached cachedResponse
	if err := json.Unmarshal(rec.Response, &cached); err != nil {
		return nil, shared.NewIntegrityError("CORRUPT_IDEMPOTENCY_RESPONSE", "cached response cannot be decoded").
			WithDetail("idempotency_key", rec.ClientKey).
			Wrap(err)
	}
	return &Result{Response: cached.Response, Replayed: true, EventIDs: cached.EventIDs}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
