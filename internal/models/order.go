package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide identifies the kind of an order instruction.
type OrderSide string

const (
	SideBuy         OrderSide = "BUY"
	SideSell        OrderSide = "SELL"
	SideMarketBuy   OrderSide = "MARKET_BUY"
	SideMarketSell  OrderSide = "MARKET_SELL"
	SideSellPercent OrderSide = "SELL_PERCENT"
	SideXDXR        OrderSide = "XDXR"
)

// IsBuy reports whether the side acquires shares against cash.
func (s OrderSide) IsBuy() bool {
	return s == SideBuy || s == SideMarketBuy
}

// IsSell reports whether the side disposes of held shares.
func (s OrderSide) IsSell() bool {
	return s == SideSell || s == SideMarketSell || s == SideSellPercent
}

// OrderStatus is the lifecycle state of an entrust.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusRejected OrderStatus = "REJECTED"
)

// Entrust is an accepted order instruction. Immutable once committed to the
// account ledger. For SELL_PERCENT orders Shares holds a fraction in (0, 1].
type Entrust struct {
	ID        string          `json:"order_id"`
	Account   string          `json:"account"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Price     *float64        `json:"price,omitempty"` // nil for market and XDXR orders
	Shares    decimal.Decimal `json:"shares"`
	OrderTime time.Time       `json:"order_time"`
	Status    OrderStatus     `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

// Trade is one fill. Shares may be fractional for sells and XDXR trades;
// buys always fill in multiples of 100. Price is the volume-weighted average
// across matched bars; for XDXR trades it is bookkeeping only.
type Trade struct {
	ID        string          `json:"trade_id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Shares    decimal.Decimal `json:"shares"`
	Price     float64         `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	TradeTime time.Time       `json:"trade_time"`
	// Profit is the realized profit of a sell against lot cost basis,
	// rescaled into the sell date's adjustment frame. Zero for buys.
	Profit decimal.Decimal `json:"pprofit"`
}

// Lot is one contiguous purchase tranche. Shares are unadjusted: XDXR never
// mutates them except through explicit stock-dividend lots; the adjustment
// factor carries the arithmetic at valuation and sell time.
type Lot struct {
	Symbol         string          `json:"symbol"`
	Shares         decimal.Decimal `json:"shares"`
	CostBasis      float64         `json:"cost_basis"`
	AcquiredDate   time.Time       `json:"acquired_date"`
	AcquiredFactor float64         `json:"acquired_factor"`
}

// Fill is the matcher's decision for one order.
type Fill struct {
	Shares   decimal.Decimal
	Price    float64
	FillTime time.Time
	Status   OrderStatus // FILLED or PARTIAL
}
