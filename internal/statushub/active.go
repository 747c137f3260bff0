package statushub

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ActiveStore tracks which orders currently have a connected observer,
// for liveness diagnostics independent of the push path.
type ActiveStore interface {
	SetActive(ctx context.Context, orderID string, meta map[string]string) error
	ClearActive(ctx context.Context, orderID string) error
	Active(ctx context.Context, orderID string) (bool, error)
}

const activeKeyPrefix = "active:order:"

// RedisActiveStore keeps markers in Redis hashes so they survive process
// restarts and are visible to external tooling.
type RedisActiveStore struct {
	client *redis.Client
}

// NewRedisActiveStore wraps an established Redis client.
func NewRedisActiveStore(client *redis.Client) *RedisActiveStore {
	return &RedisActiveStore{client: client}
}

func (r *RedisActiveStore) SetActive(ctx context.Context, orderID string, meta map[string]string) error {
	fields := make([]interface{}, 0, len(meta)*2)
	for k, v := range meta {
		fields = append(fields, k, v)
	}
	if len(fields) == 0 {
		fields = append(fields, "connected", "true")
	}
	return r.client.HSet(ctx, activeKeyPrefix+orderID, fields...).Err()
}

func (r *RedisActiveStore) ClearActive(ctx context.Context, orderID string) error {
	return r.client.Del(ctx, activeKeyPrefix+orderID).Err()
}

func (r *RedisActiveStore) Active(ctx context.Context, orderID string) (bool, error) {
	n, err := r.client.Exists(ctx, activeKeyPrefix+orderID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryActiveStore is the fallback when Redis is unreachable at
// startup. Markers then live only as long as the process.
type MemoryActiveStore struct {
	mu      sync.RWMutex
	markers map[string]map[string]string
}

// NewMemoryActiveStore creates an empty in-memory marker store.
func NewMemoryActiveStore() *MemoryActiveStore {
	return &MemoryActiveStore{markers: make(map[string]map[string]string)}
}

func (m *MemoryActiveStore) SetActive(ctx context.Context, orderID string, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]string, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	m.markers[orderID] = copied
	return nil
}

func (m *MemoryActiveStore) ClearActive(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, orderID)
	return nil
}

func (m *MemoryActiveStore) Active(ctx context.Context, orderID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.markers[orderID]
	return ok, nil
}
