package store

import (
	"context"
	"sync"
	"time"

	"github.com/Aidin1998/dexroute/internal/models"
)

// MemoryStore is the in-process fallback used when the database is
// unreachable at startup. Semantics match the durable store: upsert by
// identifier, append-only status history.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]models.Order
	statuses []models.StatusRecord
	nextID   uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]models.Order)}
}

// SaveOrder upserts the snapshot. CreatedAt is preserved from the first
// write for the identifier.
func (m *MemoryStore) SaveOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := *order
	if existing, ok := m.orders[order.ID]; ok {
		snapshot.CreatedAt = existing.CreatedAt
	}
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	m.orders[order.ID] = snapshot
	return nil
}

// AppendStatus records one status transition.
func (m *MemoryStore) AppendStatus(ctx context.Context, orderID string, status models.Status, meta models.EventMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.statuses = append(m.statuses, models.StatusRecord{
		ID:        m.nextID,
		OrderID:   orderID,
		Status:    status,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// GetOrder returns a copy of the stored snapshot.
func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

// ListStatusEvents returns the order's history in append order.
func (m *MemoryStore) ListStatusEvents(ctx context.Context, orderID string) ([]models.StatusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.StatusRecord
	for _, rec := range m.statuses {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}
