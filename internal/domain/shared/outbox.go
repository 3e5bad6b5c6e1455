package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusPublished  OutboxStatus = "PUBLISHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxAttempts = 8
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 10 * time.Minute
)

// OutboxEntry is an event row written in the same transaction as the mutation it describes
type OutboxEntry struct {
	ID                   uuid.UUID
	EventID              uuid.UUID
	TenantID             uuid.UUID
	EventType            string
	SchemaVersion        string
	OccurredAt           time.Time
	AggregateType        string
	AggregateID          uuid.UUID
	CorrelationID        string
	CausationID          string
	PartitionKey         string
	Payload              []byte
	Status               OutboxStatus
	Attempts             int
	MaxAttempts          int
	PublishedAt          *time.Time
	NextPublishAttemptAt time.Time
	LastPublishError     string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewOutboxEntry creates a new outbox entry for a domain event
func NewOutboxEntry(event DomainEvent, payload []byte, maxAttempts int) *OutboxEntry {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:                   uuid.New(),
		EventID:              event.EventID(),
		TenantID:             event.TenantID(),
		EventType:            event.EventType(),
		SchemaVersion:        CurrentSchemaVersion,
		OccurredAt:           event.OccurredAt(),
		AggregateType:        event.AggregateType(),
		AggregateID:          event.AggregateID(),
		CorrelationID:        event.CorrelationID(),
		CausationID:          event.CausationID(),
		PartitionKey:         event.PartitionKey(),
		Payload:              payload,
		Status:               OutboxStatusPending,
		MaxAttempts:          maxAttempts,
		NextPublishAttemptAt: now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// IsPublished returns true once the entry has been delivered
func (e *OutboxEntry) IsPublished() bool {
	return e.PublishedAt != nil
}

// IsDead returns true if the entry is in dead letter status
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// Claim marks the entry as being delivered until the lease runs out.
// An expired lease makes the row due again for the sweep.
func (e *OutboxEntry) Claim(now time.Time, lease time.Duration) {
	e.Status = OutboxStatusProcessing
	e.NextPublishAttemptAt = now.Add(lease)
	e.UpdatedAt = now
}

// MarkPublished records a successful delivery. It returns false when the
// entry had already been published, leaving PublishedAt untouched.
func (e *OutboxEntry) MarkPublished(now time.Time) bool {
	if e.PublishedAt != nil {
		return false
	}
	e.Attempts++
	e.Status = OutboxStatusPublished
	e.PublishedAt = &now
	e.LastPublishError = ""
	e.UpdatedAt = now
	return true
}

// MarkFailed records a failed delivery and schedules the next attempt
func (e *OutboxEntry) MarkFailed(errMsg string, now time.Time, base, max time.Duration) {
	e.Attempts++
	e.LastPublishError = errMsg
	e.UpdatedAt = now

	if e.Attempts >= e.MaxAttempts {
		e.Status = OutboxStatusDead
		e.NextPublishAttemptAt = now
		return
	}
	e.Status = OutboxStatusFailed
	e.NextPublishAttemptAt = now.Add(Backoff(e.Attempts, base, max))
}

// ResetForRetry resets a dead letter entry for retry
func (e *OutboxEntry) ResetForRetry(now time.Time) error {
	if e.Status != OutboxStatusDead {
		return errors.New("can only retry dead letter entries")
	}
	e.Status = OutboxStatusPending
	e.Attempts = 0
	e.LastPublishError = ""
	e.NextPublishAttemptAt = now
	e.UpdatedAt = now
	return nil
}

// Backoff returns base * 2^(attempt-1), capped at max
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// OutboxRepository defines the interface for outbox persistence
type OutboxRepository interface {
	// Save persists one or more outbox entries
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// ClaimDue locks and claims rows whose next attempt is due, skipping rows locked by others
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*OutboxEntry, error)
	// ClaimPending locks and claims the given events if they are still pending
	ClaimPending(ctx context.Context, eventIDs []uuid.UUID, now time.Time, lease time.Duration) ([]*OutboxEntry, error)
	// MarkPublished sets published_at once; it reports false if another worker already did
	MarkPublished(ctx context.Context, entry *OutboxEntry) (bool, error)
	// Update updates an existing outbox entry
	Update(ctx context.Context, entry *OutboxEntry) error
	// FindDead retrieves dead letter entries with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	// FindByID retrieves a single outbox entry by ID
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// FindByEventIDs retrieves entries by event id
	FindByEventIDs(ctx context.Context, eventIDs []uuid.UUID) ([]*OutboxEntry, error)
	// DeleteOlderThan deletes published entries older than the specified time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns count of entries for each status
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
