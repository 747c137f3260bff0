// Package statushub fans order status events out to live observers. At
// most one observer is registered per order at a time; events for orders
// without an observer are dropped, never buffered.
package statushub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/models"
)

// Sink is the push channel for one observer. Push failures are the
// sink's problem; the hub never retries.
type Sink interface {
	Push(event models.StatusEvent) error
	Open() bool
}

// Hub maps order identifiers to their current observer. Registration
// races with concurrent sends are resolved as last-register-wins,
// send-to-current-registration.
type Hub struct {
	logger *zap.Logger
	active ActiveStore

	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewHub creates a hub using the given active-marker store.
func NewHub(logger *zap.Logger, active ActiveStore) *Hub {
	return &Hub{
		logger: logger,
		active: active,
		sinks:  make(map[string]Sink),
	}
}

// Register associates a sink with an order, replacing any prior
// registration for that order.
func (h *Hub) Register(orderID string, sink Sink) {
	h.mu.Lock()
	h.sinks[orderID] = sink
	h.mu.Unlock()
}

// Unregister removes the order's registration, whatever sink holds it.
func (h *Hub) Unregister(orderID string) {
	h.mu.Lock()
	delete(h.sinks, orderID)
	h.mu.Unlock()
}

// Release removes the registration only if sink still holds it. The
// transport layer calls this on teardown so a closing connection cannot
// evict a newer observer for the same order.
func (h *Hub) Release(orderID string, sink Sink) {
	h.mu.Lock()
	if current, ok := h.sinks[orderID]; ok && current == sink {
		delete(h.sinks, orderID)
	}
	h.mu.Unlock()
}

// Send delivers the event to the currently registered sink, if any.
// Missing or closed observers make Send a no-op; push errors are logged
// and swallowed so they can never fail the pipeline.
func (h *Hub) Send(orderID string, event models.StatusEvent) {
	h.mu.RLock()
	sink, ok := h.sinks[orderID]
	h.mu.RUnlock()
	if !ok || !sink.Open() {
		return
	}
	if err := sink.Push(event); err != nil {
		h.logger.Debug("Status push failed",
			zap.String("order_id", orderID),
			zap.String("status", string(event.Status)),
			zap.Error(err))
	}
}

// SetActive records the out-of-band liveness marker for an order. Store
// errors are operational facts, not order outcomes, and are swallowed.
func (h *Hub) SetActive(ctx context.Context, orderID string, meta map[string]string) {
	if err := h.active.SetActive(ctx, orderID, meta); err != nil {
		h.logger.Warn("Failed to set active marker",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

// ClearActive removes the liveness marker.
func (h *Hub) ClearActive(ctx context.Context, orderID string) {
	if err := h.active.ClearActive(ctx, orderID); err != nil {
		h.logger.Warn("Failed to clear active marker",
			zap.String("order_id", orderID), zap.Error(err))
	}
}
