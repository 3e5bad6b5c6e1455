package event

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher publishes outbox rows on demand
type Dispatcher interface {
	DispatchAsync(eventIDs []uuid.UUID)
}

// OutboxService is the operator surface of the outbox
type OutboxService struct {
	repo       shared.OutboxRepository
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewOutboxService creates a new outbox service.
// dispatcher may be nil, in which case retried entries wait for the sweeper.
func NewOutboxService(repo shared.OutboxRepository, dispatcher Dispatcher, logger *zap.Logger) *OutboxService {
	return &OutboxService{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// OutboxEntryDTO represents an outbox entry data transfer object
type OutboxEntryDTO struct {
	ID                   uuid.UUID  `json:"id"`
	TenantID             uuid.UUID  `json:"tenantId"`
	EventID              uuid.UUID  `json:"eventId"`
	EventType            string     `json:"eventType"`
	SchemaVersion        string     `json:"schemaVersion"`
	AggregateID          uuid.UUID  `json:"aggregateId"`
	AggregateType        string     `json:"aggregateType"`
	CorrelationID        string     `json:"correlationId,omitempty"`
	PartitionKey         string     `json:"partitionKey"`
	Status               string     `json:"status"`
	Attempts             int        `json:"attempts"`
	MaxAttempts          int        `json:"maxAttempts"`
	LastPublishError     string     `json:"lastPublishError,omitempty"`
	NextPublishAttemptAt time.Time  `json:"nextPublishAttemptAt"`
	PublishedAt          *time.Time `json:"publishedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// OutboxFilter represents filter for querying outbox entries
type OutboxFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

var errEntryNotFound = shared.NewNotFoundError("ENTRY_NOT_FOUND", "Outbox entry not found")

// GetDeadLetterEntries retrieves dead letter entries with pagination
func (s *OutboxService) GetDeadLetterEntries(ctx context.Context, filter OutboxFilter) (*shared.Paginated[OutboxEntryDTO], error) {
	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize, 100)

	entries, total, err := s.repo.FindDead(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letter entries", zap.Error(err))
		return nil, shared.NewDomainError(shared.KindUnavailable, "OUTBOX_UNAVAILABLE", "Failed to retrieve dead letter entries").Wrap(err)
	}

	dtos := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toOutboxEntryDTO(entry)
	}
	result := shared.NewPaginated(dtos, total, page, pageSize)
	return &result, nil
}

// GetEntry retrieves a single outbox entry by ID
func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntry resets a dead letter entry and hands it to the dispatcher
func (s *OutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := entry.ResetForRetry(s.now()); err != nil {
		return nil, shared.NewValidationError("INVALID_STATUS", err.Error())
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewDomainError(shared.KindUnavailable, "OUTBOX_UNAVAILABLE", "Failed to retry entry").Wrap(err)
	}

	s.logger.Info("Dead letter entry reset for retry",
		zap.String("id", id.String()),
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync([]uuid.UUID{entry.EventID})
	}

	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAllDeadEntries resets every dead letter entry and hands the batch to
// the dispatcher. Entries that fail to reset stay dead and are logged.
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	const batch = 100
	var retried []uuid.UUID

	// reset rows leave the dead set, so the first page is always re-read
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, batch)
		if err != nil {
			s.logger.Error("Failed to find dead letter entries", zap.Error(err))
			return int64(len(retried)), shared.NewDomainError(shared.KindUnavailable, "OUTBOX_UNAVAILABLE", "Failed to retrieve dead letter entries").Wrap(err)
		}

		progressed := false
		for _, entry := range entries {
			if entry.ResetForRetry(s.now()) != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.Error(err), zap.String("id", entry.ID.String()))
				continue
			}
			retried = append(retried, entry.EventID)
			progressed = true
		}
		if !progressed || len(entries) < batch {
			break
		}
	}

	if s.dispatcher != nil && len(retried) > 0 {
		s.dispatcher.DispatchAsync(retried)
	}
	s.logger.Info("Retried dead letter entries", zap.Int("count", len(retried)))
	return int64(len(retried)), nil
}

// GetStats returns outbox statistics
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, shared.NewDomainError(shared.KindUnavailable, "OUTBOX_UNAVAILABLE", "Failed to get outbox stats").Wrap(err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Published:  counts[shared.OutboxStatusPublished],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func (s *OutboxService) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errEntryNotFound
		}
		s.logger.Error("Failed to find outbox entry", zap.Error(err), zap.String("id", id.String()))
		return nil, shared.NewDomainError(shared.KindUnavailable, "OUTBOX_UNAVAILABLE", "Failed to load outbox entry").Wrap(err)
	}
	if entry == nil {
		return nil, errEntryNotFound
	}
	return entry, nil
}

// toOutboxEntryDTO converts domain OutboxEntry to OutboxEntryDTO
func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:                   entry.ID,
		TenantID:             entry.TenantID,
		EventID:              entry.EventID,
		EventType:            entry.EventType,
		SchemaVersion:        entry.SchemaVersion,
		AggregateID:          entry.AggregateID,
		AggregateType:        entry.AggregateType,
		CorrelationID:        entry.CorrelationID,
		PartitionKey:         entry.PartitionKey,
		Status:               string(entry.Status),
		Attempts:             entry.Attempts,
		MaxAttempts:          entry.MaxAttempts,
		LastPublishError:     entry.LastPublishError,
		NextPublishAttemptAt: entry.NextPublishAttemptAt,
		PublishedAt:          entry.PublishedAt,
		CreatedAt:            entry.CreatedAt,
		UpdatedAt:            entry.UpdatedAt,
	}
}
