package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validRequest() OrderRequest {
	return OrderRequest{
		Type:       OrderTypeMarket,
		Side:       SideBuy,
		BaseAsset:  "COIN",
		QuoteAsset: "USD",
		Amount:     decimal.NewFromInt(10),
	}
}

func TestOrderRequestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validRequest().Validate())
	})

	t.Run("zero amount", func(t *testing.T) {
		req := validRequest()
		req.Amount = decimal.Zero
		assert.ErrorIs(t, req.Validate(), ErrInvalidAmount)
	})

	t.Run("slippage bounds", func(t *testing.T) {
		req := validRequest()

		ok := decimal.RequireFromString("0.01")
		req.SlippagePct = &ok
		assert.NoError(t, req.Validate())

		zero := decimal.Zero
		req.SlippagePct = &zero
		assert.NoError(t, req.Validate(), "zero tolerance is allowed")

		tooHigh := decimal.NewFromInt(1)
		req.SlippagePct = &tooHigh
		assert.ErrorIs(t, req.Validate(), ErrInvalidSlippage)

		negative := decimal.RequireFromString("-0.1")
		req.SlippagePct = &negative
		assert.ErrorIs(t, req.Validate(), ErrInvalidSlippage)
	})
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRouting.Terminal())
	assert.False(t, StatusBuilding.Terminal())
	assert.False(t, StatusSubmitted.Terminal())
}
