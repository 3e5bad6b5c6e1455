package event

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type relayFixture struct {
	repo    *GormOutboxRepository
	bus     *InMemoryBus
	relay   *Relay
	handler *recordingHandler
	clock   time.Time
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	db := persistencetest.NewSQLiteDB(t)
	f := &relayFixture{
		repo:    NewGormOutboxRepository(db),
		bus:     NewInMemoryBus(zap.NewNop()),
		handler: &recordingHandler{types: []string{testEventType}},
		clock:   time.Now().UTC().Add(time.Second),
	}
	f.bus.Subscribe(f.handler)
	f.relay = NewRelay(f.repo, f.bus, RelayConfig{
		BatchSize:   10,
		ClaimLease:  time.Minute,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
	}, nil, zap.NewNop())
	f.relay.now = func() time.Time { return f.clock }
	return f
}

func (f *relayFixture) save(t *testing.T, entries ...*shared.OutboxEntry) {
	t.Helper()
	require.NoError(t, f.repo.Save(context.Background(), entries...))
}

func (f *relayFixture) status(t *testing.T, entry *shared.OutboxEntry) *shared.OutboxEntry {
	t.Helper()
	stored, err := f.repo.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	return stored
}

func TestRelay_DispatchPublishesOnce(t *testing.T) {
	f := newRelayFixture(t)
	entry := newTestEntry(t, uuid.New())
	f.save(t, entry)

	f.relay.Dispatch(context.Background(), []uuid.UUID{entry.EventID})
	f.relay.Dispatch(context.Background(), []uuid.UUID{entry.EventID})

	assert.Equal(t, 1, f.handler.count())
	stored := f.status(t, entry)
	assert.Equal(t, shared.OutboxStatusPublished, stored.Status)
	assert.NotNil(t, stored.PublishedAt)

	n, err := f.relay.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRelay_FailedFastPathIsSweptExactlyOnce(t *testing.T) {
	f := newRelayFixture(t)
	entry := newTestEntry(t, uuid.New())
	f.save(t, entry)

	f.bus.SetFailureHook(func(shared.BusMessage) error { return errors.New("broker unavailable") })
	f.relay.Dispatch(context.Background(), []uuid.UUID{entry.EventID})

	failed := f.status(t, entry)
	assert.Equal(t, shared.OutboxStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, "broker unavailable", failed.LastPublishError)
	assert.True(t, failed.NextPublishAttemptAt.After(f.clock))
	assert.Equal(t, 0, f.handler.count())

	// not due yet
	n, err := f.relay.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.bus.SetFailureHook(nil)
	f.clock = f.clock.Add(2 * time.Second)
	n, err = f.relay.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.clock = f.clock.Add(time.Hour)
	n, err = f.relay.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, 1, f.handler.count())
	assert.Equal(t, 1, f.bus.Deliveries(entry.EventID.String()))
	published := f.status(t, entry)
	assert.Equal(t, shared.OutboxStatusPublished, published.Status)
	assert.Equal(t, 2, published.Attempts)
	assert.Empty(t, published.LastPublishError)
}

func TestRelay_MovesToDeadLetterAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t)
	entry := newTestEntry(t, uuid.New()) // max attempts 3
	f.save(t, entry)
	f.bus.SetFailureHook(func(shared.BusMessage) error { return errors.New("rejected") })

	f.relay.Dispatch(context.Background(), []uuid.UUID{entry.EventID})
	for i := 0; i < 5; i++ {
		f.clock = f.clock.Add(time.Hour)
		_, err := f.relay.SweepOnce(context.Background())
		require.NoError(t, err)
	}

	dead := f.status(t, entry)
	assert.Equal(t, shared.OutboxStatusDead, dead.Status)
	assert.Equal(t, 3, dead.Attempts)
	assert.Nil(t, dead.PublishedAt)
}

func TestRelay_FailureBlocksLaterEventsOfSamePartition(t *testing.T) {
	f := newRelayFixture(t)
	tenantID := uuid.New()
	first := newTestEntry(t, tenantID)
	second := newTestEntry(t, tenantID)
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	other := newTestEntry(t, uuid.New())
	f.save(t, first, second, other)

	var calls atomic.Int32
	f.bus.SetFailureHook(func(msg shared.BusMessage) error {
		calls.Add(1)
		if msg.EventID == first.EventID {
			return errors.New("rejected")
		}
		return nil
	})

	f.relay.Dispatch(context.Background(), []uuid.UUID{first.EventID, second.EventID, other.EventID})

	assert.Equal(t, shared.OutboxStatusFailed, f.status(t, first).Status)
	assert.Equal(t, shared.OutboxStatusProcessing, f.status(t, second).Status, "held back behind the failed event")
	assert.Equal(t, shared.OutboxStatusPublished, f.status(t, other).Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRelay_DispatchAsync(t *testing.T) {
	f := newRelayFixture(t)
	entry := newTestEntry(t, uuid.New())
	f.save(t, entry)

	f.relay.DispatchAsync([]uuid.UUID{entry.EventID})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.relay.Wait(ctx))
	assert.Equal(t, 1, f.handler.count())
}

func TestSweeper_DrainAndCleanup(t *testing.T) {
	f := newRelayFixture(t)
	for i := 0; i < 25; i++ {
		f.save(t, newTestEntry(t, uuid.New()))
	}
	sweeper := NewSweeper(f.relay, f.repo, SweeperConfig{
		PollInterval:     time.Hour,
		CleanupEnabled:   true,
		CleanupRetention: -time.Hour,
		CleanupInterval:  time.Hour,
	}, zap.NewNop())

	n := sweeper.Drain(context.Background())
	assert.Equal(t, 25, n)
	assert.Equal(t, 25, f.handler.count())

	sweeper.cleanup(context.Background())
	counts, err := f.repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts[shared.OutboxStatusPublished])
}

func TestSweeper_StartStop(t *testing.T) {
	f := newRelayFixture(t)
	sweeper := NewSweeper(f.relay, f.repo, SweeperConfig{PollInterval: 10 * time.Millisecond}, zap.NewNop())

	require.NoError(t, sweeper.Start(context.Background()))
	entry := newTestEntry(t, uuid.New())
	entry.NextPublishAttemptAt = time.Now().UTC().Add(-time.Second)
	f.save(t, entry)

	assert.Eventually(t, func() bool { return f.handler.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(ctx))
}
