// Package routing selects the liquidity source with the best effective
// price for an order.
package routing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/dex"
	"github.com/Aidin1998/dexroute/internal/models"
	"github.com/Aidin1998/dexroute/pkg/metrics"
)

var (
	// ErrNoLiquidity means every source answered but none can cover the
	// requested amount.
	ErrNoLiquidity = errors.New("no source has sufficient liquidity for the requested amount")

	// ErrAllSourcesUnavailable means every source call failed.
	ErrAllSourcesUnavailable = errors.New("all price sources unavailable")
)

// Config holds the pricing parameters applied to every quote.
type Config struct {
	// FeePct is the fixed trading fee fraction, e.g. 0.003 for 0.3%.
	FeePct decimal.Decimal
	// DefaultSlippagePct is applied when the request carries no slippage
	// tolerance, e.g. 0.005 for 0.5%.
	DefaultSlippagePct decimal.Decimal
	// QuoteTimeout bounds each source call; a breach counts as a source
	// error rather than stalling the order.
	QuoteTimeout time.Duration
}

// DefaultConfig returns the standard fee, slippage and timeout values.
func DefaultConfig() Config {
	return Config{
		FeePct:             decimal.RequireFromString("0.003"),
		DefaultSlippagePct: decimal.RequireFromString("0.005"),
		QuoteTimeout:       2 * time.Second,
	}
}

// Engine queries all configured sources concurrently and picks the one
// with the best effective price. Source order is significant: on an
// exact tie the source configured first wins.
type Engine struct {
	logger  *zap.Logger
	sources []dex.PriceSource
	cfg     Config
}

// NewEngine creates a routing engine over the given sources.
func NewEngine(logger *zap.Logger, sources []dex.PriceSource, cfg Config) *Engine {
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = DefaultConfig().QuoteTimeout
	}
	return &Engine{logger: logger, sources: sources, cfg: cfg}
}

// EffectivePrice adjusts a quoted price for fee and slippage. On a buy
// the adjustments increase the cost; on a sell they reduce the proceeds,
// so the comparison direction flips accordingly.
func EffectivePrice(price decimal.Decimal, side models.Side, feePct, slippagePct decimal.Decimal) decimal.Decimal {
	adj := feePct.Add(slippagePct)
	if side == models.SideSell {
		return price.Mul(decimal.NewFromInt(1).Sub(adj))
	}
	return price.Mul(decimal.NewFromInt(1).Add(adj))
}

// Route fans one quote request out per configured source, waits for all
// of them to settle, and returns the decision. It fails with
// ErrAllSourcesUnavailable when every call errors, and with
// ErrNoLiquidity when quotes came back but none covers the amount.
func (e *Engine) Route(ctx context.Context, req models.OrderRequest) (models.RoutingDecision, error) {
	type result struct {
		quote models.Quote
		err   error
	}
	results := make([]result, len(e.sources))

	var wg sync.WaitGroup
	for i, src := range e.sources {
		wg.Add(1)
		go func(i int, src dex.PriceSource) {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
			defer cancel()
			q, err := src.Quote(qctx, req.BaseAsset, req.QuoteAsset, req.Amount)
			results[i] = result{quote: q, err: err}
		}(i, src)
	}
	wg.Wait()

	slippage := e.cfg.DefaultSlippagePct
	if req.SlippagePct != nil {
		slippage = *req.SlippagePct
	}

	var (
		chosen    models.Quote
		best      decimal.Decimal
		rejected  []models.Quote
		haveBest  bool
		haveQuote bool
		failures  int
	)
	for i, r := range results {
		if r.err != nil {
			failures++
			e.logger.Warn("Source quote failed",
				zap.String("source", e.sources[i].Name()),
				zap.Error(r.err))
			continue
		}
		haveQuote = true
		if r.quote.Liquidity.LessThan(req.Amount) {
			rejected = append(rejected, r.quote)
			continue
		}
		eff := EffectivePrice(r.quote.Price, req.Side, e.cfg.FeePct, slippage)
		if !haveBest || better(req.Side, eff, best) {
			if haveBest {
				rejected = append(rejected, chosen)
			}
			chosen, best, haveBest = r.quote, eff, true
			continue
		}
		rejected = append(rejected, r.quote)
	}

	if failures == len(e.sources) {
		return models.RoutingDecision{}, ErrAllSourcesUnavailable
	}
	if !haveBest {
		if haveQuote {
			return models.RoutingDecision{}, ErrNoLiquidity
		}
		return models.RoutingDecision{}, ErrAllSourcesUnavailable
	}

	e.logger.Info("Routing decision",
		zap.String("source", chosen.Source),
		zap.String("side", string(req.Side)),
		zap.String("quoted_price", chosen.Price.String()),
		zap.String("effective_price", best.String()))
	metrics.RoutingDecisions.WithLabelValues(chosen.Source).Inc()

	return models.RoutingDecision{Chosen: chosen, Rejected: rejected, EffectivePrice: best}, nil
}

// better reports whether candidate strictly beats current: lower
// effective cost on a buy, higher effective proceeds on a sell. Ties
// keep the earlier source.
func better(side models.Side, candidate, current decimal.Decimal) bool {
	if side == models.SideSell {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}
