// Package pipeline drives one order through its lifecycle: pending,
// routing, building, submitted, then confirmed or failed. Each
// transition persists a snapshot and emits a status event before the
// next stage runs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/dex"
	"github.com/Aidin1998/dexroute/internal/events"
	"github.com/Aidin1998/dexroute/internal/models"
	"github.com/Aidin1998/dexroute/internal/routing"
	"github.com/Aidin1998/dexroute/internal/statushub"
	"github.com/Aidin1998/dexroute/internal/store"
	"github.com/Aidin1998/dexroute/pkg/metrics"
)

// Pipeline executes orders. A single Pipeline serves many concurrent
// runs, but the dispatcher guarantees no two runs share an order
// identifier at the same time.
type Pipeline struct {
	logger    *zap.Logger
	router    *routing.Engine
	sources   map[string]dex.PriceSource
	store     store.Store
	hub       *statushub.Hub
	publisher events.Publisher
}

// New creates a pipeline over the given collaborators.
func New(
	logger *zap.Logger,
	router *routing.Engine,
	sources []dex.PriceSource,
	st store.Store,
	hub *statushub.Hub,
	publisher events.Publisher,
) *Pipeline {
	byName := make(map[string]dex.PriceSource, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
	}
	return &Pipeline{
		logger:    logger,
		router:    router,
		sources:   byName,
		store:     st,
		hub:       hub,
		publisher: publisher,
	}
}

// Run drives the order to a terminal status. On failure the reason is
// captured, the failed snapshot is persisted, and the error is returned
// after all side effects so the dispatcher's retry layer can observe it.
func (p *Pipeline) Run(ctx context.Context, order *models.Order) (*models.Order, error) {
	started := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
		metrics.OrdersCompleted.WithLabelValues(string(order.Status)).Inc()
	}()

	p.emit(ctx, order, models.StatusPending, models.EventMeta{})
	p.emit(ctx, order, models.StatusRouting, models.EventMeta{})

	decision, err := p.router.Route(ctx, order.Request)
	if err != nil {
		return order, p.fail(ctx, order, err)
	}

	order.ChosenSource = decision.Chosen.Source
	quoted := decision.Chosen.Price
	p.emit(ctx, order, models.StatusBuilding, models.EventMeta{
		ChosenSource: decision.Chosen.Source,
		QuotedPrice:  &quoted,
	})

	src, ok := p.sources[decision.Chosen.Source]
	if !ok {
		return order, p.fail(ctx, order, fmt.Errorf("chosen source %q is not configured", decision.Chosen.Source))
	}

	p.emit(ctx, order, models.StatusSubmitted, models.EventMeta{})

	exec, err := src.Execute(ctx, order.Request.Amount)
	if err != nil {
		return order, p.fail(ctx, order, err)
	}

	order.ExecutedPrice = &exec.ExecutedPrice
	order.TxRef = exec.TxRef
	p.emit(ctx, order, models.StatusConfirmed, models.EventMeta{
		ExecutedPrice: &exec.ExecutedPrice,
		TxRef:         exec.TxRef,
	})

	// The lifecycle is complete; the observer's liveness marker no
	// longer means anything.
	p.hub.ClearActive(ctx, order.ID)

	p.logger.Info("Order confirmed",
		zap.String("order_id", order.ID),
		zap.String("source", order.ChosenSource),
		zap.String("tx_ref", order.TxRef))
	return order, nil
}

// emit advances the order to status, persists the snapshot and the
// history row, pushes to the observer and publishes to the event
// stream. Persistence and delivery failures are logged and swallowed;
// they must never abort the run.
func (p *Pipeline) emit(ctx context.Context, order *models.Order, status models.Status, meta models.EventMeta) {
	now := time.Now().UTC()
	order.Status = status
	order.UpdatedAt = now

	if err := p.store.SaveOrder(ctx, order); err != nil {
		p.logger.Warn("Failed to persist order snapshot",
			zap.String("order_id", order.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	if err := p.store.AppendStatus(ctx, order.ID, status, meta); err != nil {
		p.logger.Warn("Failed to append status record",
			zap.String("order_id", order.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}

	event := models.StatusEvent{OrderID: order.ID, Status: status, Meta: meta, Timestamp: now}
	p.hub.Send(order.ID, event)
	if err := p.publisher.PublishStatus(ctx, event); err != nil {
		p.logger.Debug("Failed to publish status event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// fail records the terminal failed status and returns the original
// error for the retry layer.
func (p *Pipeline) fail(ctx context.Context, order *models.Order, cause error) error {
	reason := cause.Error()
	order.FailureReason = reason
	p.emit(ctx, order, models.StatusFailed, models.EventMeta{Reason: reason})
	p.logger.Warn("Order failed",
		zap.String("order_id", order.ID),
		zap.String("reason", reason))
	return cause
}
