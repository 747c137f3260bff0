// Package models defines the order aggregate, quote and status-event types
// shared by the routing, pipeline, dispatch and API layers.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status is a stage in the order lifecycle. Statuses form a strict
// sequence: pending, routing, building, submitted, confirmed on the
// success path, with failed reachable from any stage after pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// OrderTypeMarket is the only order type the service executes.
const OrderTypeMarket = "market"

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidSlippage = errors.New("slippage_pct must be in [0, 1)")
)

// OrderRequest is the immutable request payload attached to an order.
// Shape constraints live in the binding tags; numeric invariants the
// tags cannot express are enforced by Validate.
type OrderRequest struct {
	Type        string           `json:"type" binding:"required,oneof=market"`
	Side        Side             `json:"side" binding:"required,oneof=buy sell"`
	BaseAsset   string           `json:"base_asset" binding:"required"`
	QuoteAsset  string           `json:"quote_asset" binding:"required"`
	Amount      decimal.Decimal  `json:"amount" binding:"required"`
	SlippagePct *decimal.Decimal `json:"slippage_pct,omitempty"`
}

// Validate checks the numeric invariants: amount > 0 and slippage in
// [0, 1) when supplied.
func (r OrderRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if r.SlippagePct != nil {
		if r.SlippagePct.IsNegative() || r.SlippagePct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return ErrInvalidSlippage
		}
	}
	return nil
}

// Quote is a single source's answer to a pricing request. Quotes are
// ephemeral and never persisted beyond the routing decision.
type Quote struct {
	Source    string          `json:"source"`
	Price     decimal.Decimal `json:"price"`
	Liquidity decimal.Decimal `json:"liquidity"`
}

// RoutingDecision is the outcome of comparing effective prices across
// all configured sources.
type RoutingDecision struct {
	Chosen         Quote           `json:"chosen"`
	Rejected       []Quote         `json:"rejected,omitempty"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
}

// Order is the aggregate root persisted by the store. Mutable fields are
// owned by the pipeline run processing the order; CreatedAt is immutable
// after acceptance.
type Order struct {
	ID            string           `json:"order_id" gorm:"primaryKey;column:order_id"`
	Request       OrderRequest     `json:"request" gorm:"serializer:json"`
	Status        Status           `json:"status" gorm:"index"`
	ChosenSource  string           `json:"chosen_source,omitempty"`
	ExecutedPrice *decimal.Decimal `json:"executed_price,omitempty" gorm:"type:numeric"`
	TxRef         string           `json:"tx_ref,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName overrides the gorm default.
func (Order) TableName() string { return "orders" }

// EventMeta is the closed metadata carried by a status event. Which
// fields are populated depends on the status: building carries the chosen
// source and quoted price, confirmed carries the tx ref and executed
// price, failed carries the reason.
type EventMeta struct {
	ChosenSource  string           `json:"chosen_source,omitempty"`
	QuotedPrice   *decimal.Decimal `json:"quoted_price,omitempty"`
	ExecutedPrice *decimal.Decimal `json:"executed_price,omitempty"`
	TxRef         string           `json:"tx_ref,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// StatusEvent is one append-only lifecycle transition pushed to the
// order's observer and recorded in the status history.
type StatusEvent struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Meta      EventMeta `json:"meta"`
	Timestamp time.Time `json:"ts"`
}

// StatusRecord is the persisted form of a StatusEvent.
type StatusRecord struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID   string    `json:"order_id" gorm:"index"`
	Status    Status    `json:"status"`
	Meta      EventMeta `json:"meta" gorm:"serializer:json"`
	Timestamp time.Time `json:"ts"`
}

// TableName overrides the gorm default.
func (StatusRecord) TableName() string { return "order_statuses" }
