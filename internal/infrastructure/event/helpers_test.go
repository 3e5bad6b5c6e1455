package event

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testEventType = "test.thing.happened"

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(testEventType, "Thing", uuid.New(), tenantID),
		Data:            "payload",
	}
}

func newTestSerializer() *EnvelopeSerializer {
	s := NewEnvelopeSerializer("ledgercore-test")
	s.Register(testEventType, &testEvent{})
	return s
}

// newTestEntry builds an outbox row the way RecordEvents does
func newTestEntry(t *testing.T, tenantID uuid.UUID) *shared.OutboxEntry {
	t.Helper()
	ev := newTestEvent(tenantID)
	payload, err := newTestSerializer().Serialize(ev)
	require.NoError(t, err)
	return shared.NewOutboxEntry(ev, payload, 3)
}

// recordingHandler remembers the envelopes it handled
type recordingHandler struct {
	types []string
	err   error

	mu      sync.Mutex
	handled []*shared.Envelope
}

func (h *recordingHandler) Handle(_ context.Context, env *shared.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, env)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func (h *recordingHandler) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}
