package routing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/dex"
	"github.com/Aidin1998/dexroute/internal/models"
)

type fakeSource struct {
	name  string
	price decimal.Decimal
	liq   decimal.Decimal
	err   error
	delay time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Quote(ctx context.Context, base, quote string, amount decimal.Decimal) (models.Quote, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return models.Quote{}, f.err
	}
	return models.Quote{Source: f.name, Price: f.price, Liquidity: f.liq}, nil
}

func (f *fakeSource) Execute(ctx context.Context, amount decimal.Decimal) (dex.Execution, error) {
	return dex.Execution{ExecutedPrice: f.price, TxRef: "0xtest"}, nil
}

func newSource(name, price string) *fakeSource {
	return &fakeSource{
		name:  name,
		price: decimal.RequireFromString(price),
		liq:   decimal.NewFromInt(1_000_000),
	}
}

func buyRequest(amount string) models.OrderRequest {
	return models.OrderRequest{
		Type:       models.OrderTypeMarket,
		Side:       models.SideBuy,
		BaseAsset:  "COIN",
		QuoteAsset: "USD",
		Amount:     decimal.RequireFromString(amount),
	}
}

func newEngine(sources ...dex.PriceSource) *Engine {
	return NewEngine(zap.NewNop(), sources, DefaultConfig())
}

func TestRouteChoosesBestEffectivePrice(t *testing.T) {
	engine := newEngine(newSource("Raydium", "100"), newSource("Meteora", "105"))

	decision, err := engine.Route(context.Background(), buyRequest("10"))
	require.NoError(t, err)

	assert.Equal(t, "Raydium", decision.Chosen.Source)
	// 100 * (1 + 0.003 + 0.005) = 100.8
	assert.True(t, decimal.RequireFromString("100.8").Equal(decision.EffectivePrice),
		"effective price = %s", decision.EffectivePrice)
	require.Len(t, decision.Rejected, 1)
	assert.Equal(t, "Meteora", decision.Rejected[0].Source)
}

func TestRouteTieBreakIsDeterministic(t *testing.T) {
	engine := newEngine(newSource("Raydium", "100"), newSource("Meteora", "100"))

	for i := 0; i < 25; i++ {
		decision, err := engine.Route(context.Background(), buyRequest("10"))
		require.NoError(t, err)
		assert.Equal(t, "Raydium", decision.Chosen.Source, "tie must keep the first configured source")
	}
}

func TestRouteBuySidePrefersLowerEffectivePrice(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		p1 := 50 + rng.Float64()*100
		p2 := 50 + rng.Float64()*100
		s1 := &fakeSource{name: "A", price: decimal.NewFromFloat(p1), liq: decimal.NewFromInt(1_000_000)}
		s2 := &fakeSource{name: "B", price: decimal.NewFromFloat(p2), liq: decimal.NewFromInt(1_000_000)}
		engine := newEngine(s1, s2)

		decision, err := engine.Route(context.Background(), buyRequest("10"))
		require.NoError(t, err)

		expected := "A"
		if p2 < p1 {
			expected = "B"
		}
		assert.Equal(t, expected, decision.Chosen.Source,
			"prices %v vs %v", p1, p2)
	}
}

func TestRouteSellSidePrefersHigherProceeds(t *testing.T) {
	engine := newEngine(newSource("Raydium", "100"), newSource("Meteora", "105"))

	req := buyRequest("10")
	req.Side = models.SideSell
	decision, err := engine.Route(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Meteora", decision.Chosen.Source)
	// 105 * (1 - 0.003 - 0.005) = 104.16
	assert.True(t, decimal.RequireFromString("104.16").Equal(decision.EffectivePrice),
		"effective price = %s", decision.EffectivePrice)
}

func TestRouteRequestSlippageOverridesDefault(t *testing.T) {
	engine := newEngine(newSource("Raydium", "100"))

	req := buyRequest("10")
	slippage := decimal.RequireFromString("0.01")
	req.SlippagePct = &slippage
	decision, err := engine.Route(context.Background(), req)
	require.NoError(t, err)

	// 100 * (1 + 0.003 + 0.01) = 101.3
	assert.True(t, decimal.RequireFromString("101.3").Equal(decision.EffectivePrice))
}

func TestRouteNoLiquidity(t *testing.T) {
	thin := newSource("Raydium", "100")
	thin.liq = decimal.NewFromInt(5)
	thinner := newSource("Meteora", "99")
	thinner.liq = decimal.NewFromInt(1)
	engine := newEngine(thin, thinner)

	_, err := engine.Route(context.Background(), buyRequest("10"))
	assert.ErrorIs(t, err, ErrNoLiquidity)
}

func TestRouteAllSourcesUnavailable(t *testing.T) {
	s1 := newSource("Raydium", "100")
	s1.err = context.DeadlineExceeded
	s2 := newSource("Meteora", "100")
	s2.err = context.DeadlineExceeded
	engine := newEngine(s1, s2)

	_, err := engine.Route(context.Background(), buyRequest("10"))
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
}

func TestRoutePartialFailureStillRoutes(t *testing.T) {
	down := newSource("Raydium", "90")
	down.err = context.DeadlineExceeded
	engine := newEngine(down, newSource("Meteora", "105"))

	decision, err := engine.Route(context.Background(), buyRequest("10"))
	require.NoError(t, err)
	assert.Equal(t, "Meteora", decision.Chosen.Source)
}

func TestRouteQuoteTimeoutCountsAsSourceError(t *testing.T) {
	slow := newSource("Raydium", "90")
	slow.delay = 500 * time.Millisecond
	cfg := DefaultConfig()
	cfg.QuoteTimeout = 20 * time.Millisecond
	engine := NewEngine(zap.NewNop(), []dex.PriceSource{slow, newSource("Meteora", "105")}, cfg)

	decision, err := engine.Route(context.Background(), buyRequest("10"))
	require.NoError(t, err)
	assert.Equal(t, "Meteora", decision.Chosen.Source, "a stalled source must not win or block")
}

func TestEffectivePrice(t *testing.T) {
	fee := decimal.RequireFromString("0.003")
	slip := decimal.RequireFromString("0.005")
	price := decimal.NewFromInt(100)

	buy := EffectivePrice(price, models.SideBuy, fee, slip)
	sell := EffectivePrice(price, models.SideSell, fee, slip)

	assert.True(t, decimal.RequireFromString("100.8").Equal(buy))
	assert.True(t, decimal.RequireFromString("99.2").Equal(sell))
}
