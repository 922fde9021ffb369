package model

import "github.com/shopspring/decimal"

// Order is a sized trade instruction produced from a decision.
// A zero Quantity means "flatten the opposite side only".
type Order struct {
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Leverage   int             `json:"leverage"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Call       string          `json:"call"`
	Confidence float64         `json:"confidence"`
}

// Notional is quantity × price.
func (o *Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}
