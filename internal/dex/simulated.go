package dex

import (
	"context"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/dexroute/internal/models"
)

// SimulatedSource is an in-process liquidity venue used in place of real
// DEX integrations. Quotes vary 2-5% around a base price, liquidity
// varies around one million base units, and execution settles after a
// simulated confirmation delay.
type SimulatedSource struct {
	name string

	BasePrice    decimal.Decimal
	QuoteDelay   [2]time.Duration // min, max
	ExecuteDelay [2]time.Duration // min, max

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSource creates a venue with default pricing behaviour.
func NewSimulatedSource(name string) *SimulatedSource {
	return NewSimulatedSourceWithRand(name, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSimulatedSourceWithRand creates a venue with an injected random
// source so tests can make it deterministic.
func NewSimulatedSourceWithRand(name string, rng *rand.Rand) *SimulatedSource {
	return &SimulatedSource{
		name:         name,
		BasePrice:    decimal.NewFromInt(100),
		QuoteDelay:   [2]time.Duration{180 * time.Millisecond, 240 * time.Millisecond},
		ExecuteDelay: [2]time.Duration{2 * time.Second, 3 * time.Second},
		rng:          rng,
	}
}

// Name returns the venue identifier.
func (s *SimulatedSource) Name() string { return s.name }

// Quote returns a price 2-5% either side of the base price with
// liquidity of roughly one million base units, after a simulated
// network delay.
func (s *SimulatedSource) Quote(ctx context.Context, baseAsset, quoteAsset string, amount decimal.Decimal) (models.Quote, error) {
	s.mu.Lock()
	variance := 0.02 + s.rng.Float64()*0.03
	if s.rng.Intn(2) == 0 {
		variance = -variance
	}
	liquidity := 1_000_000 * (0.8 + s.rng.Float64()*0.4)
	delay := s.randDelay(s.QuoteDelay)
	s.mu.Unlock()

	if err := sleepCtx(ctx, delay); err != nil {
		return models.Quote{}, err
	}
	price := s.BasePrice.Mul(decimal.NewFromFloat(1 + variance))
	return models.Quote{
		Source:    s.name,
		Price:     price,
		Liquidity: decimal.NewFromFloat(liquidity),
	}, nil
}

// Execute settles a swap after a simulated confirmation delay. The
// executed price drifts up to 0.5% from the base price.
func (s *SimulatedSource) Execute(ctx context.Context, amount decimal.Decimal) (Execution, error) {
	s.mu.Lock()
	drift := (s.rng.Float64() - 0.5) * 0.01
	delay := s.randDelay(s.ExecuteDelay)
	ref := make([]byte, 16)
	s.rng.Read(ref)
	s.mu.Unlock()

	if err := sleepCtx(ctx, delay); err != nil {
		return Execution{}, err
	}
	return Execution{
		ExecutedPrice: s.BasePrice.Mul(decimal.NewFromFloat(1 + drift)),
		TxRef:         "0x" + hex.EncodeToString(ref),
	}, nil
}

func (s *SimulatedSource) randDelay(bounds [2]time.Duration) time.Duration {
	if bounds[1] <= bounds[0] {
		return bounds[0]
	}
	return bounds[0] + time.Duration(s.rng.Int63n(int64(bounds[1]-bounds[0])))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
