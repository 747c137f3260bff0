// Package store persists order snapshots and their append-only status
// history. Persistence is keyed by order identifier and is best-effort
// from the pipeline's point of view; durability is this layer's concern.
package store

import (
	"context"
	"errors"

	"github.com/Aidin1998/dexroute/internal/models"
)

// ErrOrderNotFound is returned when no snapshot exists for an identifier.
var ErrOrderNotFound = errors.New("order not found")

// Store is the persistence collaborator. SaveOrder upserts by order
// identifier with last-write-wins semantics on every mutable field;
// AppendStatus is append-only with no upsert semantics. Implementations
// must be safe for concurrent use by many pipeline runs.
type Store interface {
	SaveOrder(ctx context.Context, order *models.Order) error
	AppendStatus(ctx context.Context, orderID string, status models.Status, meta models.EventMeta) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListStatusEvents(ctx context.Context, orderID string) ([]models.StatusRecord, error)
}
