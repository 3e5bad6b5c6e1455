package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	BaseDomainEvent
}

func newTestEvent() *testEvent {
	return &testEvent{BaseDomainEvent: NewBaseDomainEvent("test.happened", "Test", uuid.New(), uuid.New())}
}

func TestNewOutboxEntry(t *testing.T) {
	ev := newTestEvent()
	ev.Correlate("corr-1", "cause-1")

	entry := NewOutboxEntry(ev, []byte(`{}`), 0)

	assert.Equal(t, ev.EventID(), entry.EventID)
	assert.Equal(t, ev.TenantID(), entry.TenantID)
	assert.Equal(t, "test.happened", entry.EventType)
	assert.Equal(t, CurrentSchemaVersion, entry.SchemaVersion)
	assert.Equal(t, "corr-1", entry.CorrelationID)
	assert.Equal(t, "cause-1", entry.CausationID)
	assert.Equal(t, ev.TenantID().String(), entry.PartitionKey)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxAttempts, entry.MaxAttempts)
	assert.Nil(t, entry.PublishedAt)
	assert.False(t, entry.NextPublishAttemptAt.IsZero())
}

func TestOutboxEntry_MarkPublished(t *testing.T) {
	entry := NewOutboxEntry(newTestEvent(), []byte(`{}`), 3)
	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	require.True(t, entry.MarkPublished(first))
	assert.Equal(t, OutboxStatusPublished, entry.Status)
	assert.Equal(t, first, *entry.PublishedAt)

	assert.False(t, entry.MarkPublished(first.Add(time.Minute)), "second delivery must not move published_at")
	assert.Equal(t, first, *entry.PublishedAt)
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("schedules exponential backoff", func(t *testing.T) {
		entry := NewOutboxEntry(newTestEvent(), []byte(`{}`), 5)

		entry.MarkFailed("broker down", now, time.Second, time.Minute)
		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, 1, entry.Attempts)
		assert.Equal(t, "broker down", entry.LastPublishError)
		assert.Equal(t, now.Add(time.Second), entry.NextPublishAttemptAt)

		entry.MarkFailed("broker down", now, time.Second, time.Minute)
		assert.Equal(t, now.Add(2*time.Second), entry.NextPublishAttemptAt)
	})

	t.Run("moves to dead letter at max attempts", func(t *testing.T) {
		entry := NewOutboxEntry(newTestEvent(), []byte(`{}`), 2)

		entry.MarkFailed("e1", now, time.Second, time.Minute)
		entry.MarkFailed("e2", now, time.Second, time.Minute)

		assert.True(t, entry.IsDead())
		assert.Equal(t, "e2", entry.LastPublishError)
		assert.Nil(t, entry.PublishedAt)
	})
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("resets dead letter entry for retry", func(t *testing.T) {
		entry := NewOutboxEntry(newTestEvent(), []byte(`{}`), 1)
		entry.MarkFailed("boom", now, time.Second, time.Minute)
		require.True(t, entry.IsDead())

		err := entry.ResetForRetry(now)
		assert.NoError(t, err)
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Equal(t, 0, entry.Attempts)
		assert.Empty(t, entry.LastPublishError)
		assert.Equal(t, now, entry.NextPublishAttemptAt)
	})

	t.Run("fails for non-dead entry", func(t *testing.T) {
		for _, status := range []OutboxStatus{
			OutboxStatusPending,
			OutboxStatusProcessing,
			OutboxStatusPublished,
			OutboxStatusFailed,
		} {
			entry := &OutboxEntry{ID: uuid.New(), Status: status}
			err := entry.ResetForRetry(now)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "can only retry dead letter entries")
		}
	})
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1, time.Second, time.Minute))
	assert.Equal(t, 4*time.Second, Backoff(3, time.Second, time.Minute))
	assert.Equal(t, time.Minute, Backoff(10, time.Second, time.Minute))
	assert.Equal(t, DefaultBaseBackoff, Backoff(0, 0, 0))
}
