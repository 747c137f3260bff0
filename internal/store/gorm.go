package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/dexroute/internal/models"
)

// GormStore is the durable store backed by a gorm database handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and returns a durable store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.Order{}, &models.StatusRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate order schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveOrder upserts the snapshot by order identifier. CreatedAt is not
// part of the update set so the acceptance timestamp survives later
// snapshots.
func (s *GormStore) SaveOrder(ctx context.Context, order *models.Order) error {
	snapshot := *order
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"request", "status", "chosen_source", "executed_price",
			"tx_ref", "failure_reason", "updated_at",
		}),
	}).Create(&snapshot).Error
}

// AppendStatus inserts one history row; rows are never updated.
func (s *GormStore) AppendStatus(ctx context.Context, orderID string, status models.Status, meta models.EventMeta) error {
	rec := models.StatusRecord{
		OrderID:   orderID,
		Status:    status,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// GetOrder loads the snapshot for an identifier.
func (s *GormStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).First(&order, "order_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListStatusEvents returns the order's history in insertion order.
func (s *GormStore) ListStatusEvents(ctx context.Context, orderID string) ([]models.StatusRecord, error) {
	var recs []models.StatusRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}
