package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of exposure.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// LotState tracks a position through its lifecycle.
// Open → Monitoring (first risk sweep) → Closed (sold, covered or auto-closed).
type LotState string

const (
	LotOpen       LotState = "OPEN"
	LotMonitoring LotState = "MONITORING"
	LotClosed     LotState = "CLOSED"
)

// Position is one long lot held in the ledger. A ticker may have several lots.
type Position struct {
	ID         string          `json:"id"`
	Ticker     string          `json:"ticker"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"bought_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`   // absolute price, zero = none
	TakeProfit decimal.Decimal `json:"take_profit"` // absolute price, zero = none
	Leverage   int             `json:"leverage"`
	OpenedAt   time.Time       `json:"opened_at"`
	State      LotState        `json:"state"`
}

// Cost is the cash paid to open the lot.
func (p *Position) Cost() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// Gain is the leveraged P&L of the lot at price.
func (p *Position) Gain(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(p.Quantity).Mul(decimal.NewFromInt(int64(p.Leverage)))
}

// ShortPosition is one short lot held in the ledger.
type ShortPosition struct {
	ID         string          `json:"id"`
	Ticker     string          `json:"ticker"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"short_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Leverage   int             `json:"leverage"`
	OpenedAt   time.Time       `json:"opened_at"`
	State      LotState        `json:"state"`
}

// Proceeds is the cash credited when the short was opened.
func (p *ShortPosition) Proceeds() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// Gain is the leveraged P&L of the short lot at price.
func (p *ShortPosition) Gain(price decimal.Decimal) decimal.Decimal {
	return p.EntryPrice.Sub(price).Mul(p.Quantity).Mul(decimal.NewFromInt(int64(p.Leverage)))
}
