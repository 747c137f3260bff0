// Package dex abstracts external liquidity venues capable of quoting and
// executing a swap.
package dex

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/dexroute/internal/models"
)

// Execution is the receipt returned by a source after a swap settles.
type Execution struct {
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	TxRef         string          `json:"tx_ref"`
}

// PriceSource is a liquidity venue. Quote and Execute are both
// non-deterministic in latency and price; callers bound them with a
// context deadline.
type PriceSource interface {
	Name() string
	Quote(ctx context.Context, baseAsset, quoteAsset string, amount decimal.Decimal) (models.Quote, error)
	Execute(ctx context.Context, amount decimal.Decimal) (Execution, error)
}
