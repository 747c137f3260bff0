// Package dispatch decouples order acceptance from pipeline execution.
// Jobs flow through a Redis-backed queue with retry when the broker is
// reachable at startup, and through a bounded in-process worker pool
// with no retry when it is not. The mode is determined once per process
// lifetime and never flips mid-flight.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/models"
	"github.com/Aidin1998/dexroute/pkg/metrics"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Mode is the dispatcher's operating mode.
type Mode string

const (
	// ModeDurable queues jobs in Redis with retry and backoff.
	ModeDurable Mode = "durable"
	// ModeFallback runs jobs in-process with no retry.
	ModeFallback Mode = "fallback"
)

// Runner executes one order to a terminal status. Implemented by the
// execution pipeline.
type Runner interface {
	Run(ctx context.Context, order *models.Order) (*models.Order, error)
}

// Config holds queueing and retry policy.
type Config struct {
	QueueKey     string        // Redis list holding pending jobs
	Concurrency  int           // worker pool size, both modes
	MaxAttempts  int           // durable mode only
	RetryBackoff time.Duration // initial backoff, doubled per attempt
	PopTimeout   time.Duration // BRPOP block interval
}

// DefaultConfig mirrors the durable queue's standard policy: three
// attempts with exponential backoff starting at one second, ten
// concurrent pipeline runs.
func DefaultConfig() Config {
	return Config{
		QueueKey:     "dexroute:orders",
		Concurrency:  10,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
		PopTimeout:   time.Second,
	}
}

type job struct {
	OrderID   string              `json:"order_id"`
	Request   models.OrderRequest `json:"request"`
	CreatedAt time.Time           `json:"created_at"`
}

// Dispatcher accepts jobs and hands them to a worker pool. Submit never
// blocks on pipeline completion.
type Dispatcher struct {
	logger *zap.Logger
	runner Runner
	cfg    Config
	mode   Mode

	rdb  *redis.Client // nil in fallback mode
	jobs chan job      // fallback feed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// New creates a dispatcher. Pass a connected Redis client for durable
// mode, or nil to select the in-process fallback. The choice is fixed
// for the life of the dispatcher.
func New(logger *zap.Logger, runner Runner, rdb *redis.Client, cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.QueueKey == "" {
		cfg.QueueKey = DefaultConfig().QueueKey
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultConfig().PopTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger: logger,
		runner: runner,
		cfg:    cfg,
		rdb:    rdb,
		ctx:    ctx,
		cancel: cancel,
	}
	if rdb != nil {
		d.mode = ModeDurable
	} else {
		d.mode = ModeFallback
		d.jobs = make(chan job, 1024)
	}
	return d
}

// Mode reports the mode selected at construction.
func (d *Dispatcher) Mode() Mode { return d.mode }

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Concurrency; i++ {
		d.wg.Add(1)
		if d.mode == ModeDurable {
			go d.durableWorker()
		} else {
			go d.fallbackWorker()
		}
	}
	d.logger.Info("Dispatcher started",
		zap.String("mode", string(d.mode)),
		zap.Int("concurrency", d.cfg.Concurrency))
}

// Submit enqueues the order for asynchronous execution and returns
// immediately.
func (d *Dispatcher) Submit(ctx context.Context, orderID string, req models.OrderRequest) error {
	// The read lock spans the fallback path's wg.Add so Close cannot
	// enter wg.Wait between the closed check and the Add.
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	j := job{OrderID: orderID, Request: req, CreatedAt: time.Now().UTC()}

	if d.mode == ModeDurable {
		payload, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := d.rdb.LPush(ctx, d.cfg.QueueKey, payload).Err(); err != nil {
			return fmt.Errorf("failed to enqueue order %s: %w", orderID, err)
		}
		return nil
	}

	// Fallback: feed the bounded pool without ever blocking the caller.
	select {
	case d.jobs <- j:
	default:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			select {
			case d.jobs <- j:
			case <-d.ctx.Done():
			}
		}()
	}
	return nil
}

// Close rejects further submissions, stops the workers and waits for
// in-flight runs to finish.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	d.closed = true
	d.closeMu.Unlock()
	d.cancel()
	d.wg.Wait()
}

// durableWorker consumes the Redis list and runs each job with retry.
func (d *Dispatcher) durableWorker() {
	defer d.wg.Done()
	for {
		vals, err := d.rdb.BRPop(d.ctx, d.cfg.PopTimeout, d.cfg.QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if d.ctx.Err() != nil {
				return
			}
			d.logger.Warn("Queue pop failed", zap.Error(err))
			continue
		}
		// BRPop returns [key, value].
		if len(vals) != 2 {
			continue
		}
		var j job
		if err := json.Unmarshal([]byte(vals[1]), &j); err != nil {
			d.logger.Error("Dropping malformed job", zap.Error(err))
			continue
		}
		d.runWithRetry(j)
	}
}

// fallbackWorker consumes the in-process channel with no retry; a
// failed run surfaces only through the order's failed status.
func (d *Dispatcher) fallbackWorker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case j := <-d.jobs:
			if _, err := d.runner.Run(d.ctx, orderFromJob(j)); err != nil {
				d.logger.Warn("Order run failed",
					zap.String("order_id", j.OrderID),
					zap.Error(err))
			}
		}
	}
}

// runWithRetry gives a job up to MaxAttempts runs with exponential
// backoff between attempts.
func (d *Dispatcher) runWithRetry(j job) {
	backoff := d.cfg.RetryBackoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		_, err := d.runner.Run(d.ctx, orderFromJob(j))
		if err == nil {
			return
		}
		d.logger.Warn("Order run failed",
			zap.String("order_id", j.OrderID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.Error(err))
		if attempt == d.cfg.MaxAttempts {
			return
		}
		metrics.QueueJobsRetried.Inc()
		select {
		case <-d.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func orderFromJob(j job) *models.Order {
	return &models.Order{
		ID:        j.OrderID,
		Request:   j.Request,
		Status:    models.StatusPending,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.CreatedAt,
	}
}
