package statushub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/models"
)

type testSink struct {
	mu     sync.Mutex
	events []models.StatusEvent
	open   bool
	err    error
}

func newTestSink() *testSink { return &testSink{open: true} }

func (s *testSink) Push(event models.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *testSink) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *testSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func event(orderID string, status models.Status) models.StatusEvent {
	return models.StatusEvent{OrderID: orderID, Status: status, Timestamp: time.Now().UTC()}
}

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), NewMemoryActiveStore())
}

func TestSendWithoutObserverIsNoop(t *testing.T) {
	hub := newTestHub()
	// must neither panic nor buffer
	hub.Send("unknown", event("unknown", models.StatusRouting))

	sink := newTestSink()
	hub.Register("unknown", sink)
	hub.Send("unknown", event("unknown", models.StatusBuilding))
	assert.Equal(t, 1, sink.count(), "events emitted before registration are not replayed")
}

func TestLastRegistrationWins(t *testing.T) {
	hub := newTestHub()
	first := newTestSink()
	second := newTestSink()

	hub.Register("ord-1", first)
	hub.Register("ord-1", second)
	hub.Send("ord-1", event("ord-1", models.StatusRouting))

	assert.Equal(t, 0, first.count())
	assert.Equal(t, 1, second.count())
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := newTestHub()
	sink := newTestSink()
	hub.Register("ord-2", sink)
	hub.Unregister("ord-2")

	hub.Send("ord-2", event("ord-2", models.StatusRouting))
	assert.Equal(t, 0, sink.count())
}

func TestReleaseOnlyRemovesOwnRegistration(t *testing.T) {
	hub := newTestHub()
	old := newTestSink()
	current := newTestSink()

	hub.Register("ord-3", old)
	hub.Register("ord-3", current)

	// a stale connection tearing down must not evict the new observer
	hub.Release("ord-3", old)
	hub.Send("ord-3", event("ord-3", models.StatusRouting))
	assert.Equal(t, 1, current.count())

	hub.Release("ord-3", current)
	hub.Send("ord-3", event("ord-3", models.StatusBuilding))
	assert.Equal(t, 1, current.count())
}

func TestSendSkipsClosedSink(t *testing.T) {
	hub := newTestHub()
	sink := newTestSink()
	sink.open = false
	hub.Register("ord-4", sink)

	hub.Send("ord-4", event("ord-4", models.StatusRouting))
	assert.Equal(t, 0, sink.count())
}

func TestSendSwallowsPushErrors(t *testing.T) {
	hub := newTestHub()
	sink := newTestSink()
	sink.err = errors.New("connection reset")
	hub.Register("ord-5", sink)

	// must not panic or propagate
	hub.Send("ord-5", event("ord-5", models.StatusRouting))
}

func TestConcurrentRegisterAndSend(t *testing.T) {
	hub := newTestHub()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Register("ord-6", newTestSink())
		}()
		go func() {
			defer wg.Done()
			hub.Send("ord-6", event("ord-6", models.StatusRouting))
		}()
	}
	wg.Wait()

	final := newTestSink()
	hub.Register("ord-6", final)
	hub.Send("ord-6", event("ord-6", models.StatusConfirmed))
	assert.Equal(t, 1, final.count())
}

func TestMemoryActiveStore(t *testing.T) {
	ctx := context.Background()
	active := NewMemoryActiveStore()

	ok, err := active.Active(ctx, "ord-7")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, active.SetActive(ctx, "ord-7", map[string]string{"connected_at": "now"}))
	ok, err = active.Active(ctx, "ord-7")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, active.ClearActive(ctx, "ord-7"))
	ok, err = active.Active(ctx, "ord-7")
	require.NoError(t, err)
	assert.False(t, ok)
}
