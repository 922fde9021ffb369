// Package portfolio turns decisions into sized orders and manages open
// exposure: the position sizer, the stop-loss / take-profit risk monitor,
// pre-trade risk limits and P&L summaries.
package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/strategy"
)

// quantityPlaces is the precision orders are truncated to.
const quantityPlaces = 8

// Tier is the sizing rule for one call strength.
type Tier struct {
	Fraction decimal.Decimal `json:"fraction" yaml:"fraction"` // share of budget committed
	Leverage int             `json:"leverage" yaml:"leverage"`
}

// SizerConfig holds the tier table and exit distances. StopLossPct and
// TakeProfitPct are fractions of the entry price (0.002 = 0.2%).
type SizerConfig struct {
	Tiers         map[indicator.Call]Tier
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	MinConfidence float64
}

// DefaultSizerConfig mirrors the production tiers: 1%/1x, 4%/2x, 6%/3x on
// either side, stops 0.2% and targets 0.5% from entry.
func DefaultSizerConfig() SizerConfig {
	plain := Tier{Fraction: decimal.RequireFromString("0.01"), Leverage: 1}
	strong := Tier{Fraction: decimal.RequireFromString("0.04"), Leverage: 2}
	veryStrong := Tier{Fraction: decimal.RequireFromString("0.06"), Leverage: 3}
	return SizerConfig{
		Tiers: map[indicator.Call]Tier{
			indicator.Buy: plain, indicator.StrongBuy: strong, indicator.VeryStrongBuy: veryStrong,
			indicator.Sell: plain, indicator.StrongSell: strong, indicator.VeryStrongSell: veryStrong,
		},
		StopLossPct:   decimal.RequireFromString("0.002"),
		TakeProfitPct: decimal.RequireFromString("0.005"),
	}
}

// Validate checks that every non-hold call has a tier, fractions lie in
// [0,1], leverage is at least 1, and stronger calls never get a smaller
// fraction or leverage than weaker ones on the same side.
func (c SizerConfig) Validate() error {
	if c.StopLossPct.IsNegative() || c.StopLossPct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: stop loss pct %s outside [0,1)", config.ErrInvalidConfiguration, c.StopLossPct)
	}
	if c.TakeProfitPct.IsNegative() || c.TakeProfitPct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: take profit pct %s outside [0,1)", config.ErrInvalidConfiguration, c.TakeProfitPct)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence %v outside [0,1]", config.ErrInvalidConfiguration, c.MinConfidence)
	}
	for _, side := range [][]indicator.Call{
		{indicator.Buy, indicator.StrongBuy, indicator.VeryStrongBuy},
		{indicator.Sell, indicator.StrongSell, indicator.VeryStrongSell},
	} {
		var prev *Tier
		for _, call := range side {
			t, ok := c.Tiers[call]
			if !ok {
				return fmt.Errorf("%w: no sizing tier for %s", config.ErrInvalidConfiguration, call)
			}
			if t.Fraction.IsNegative() || t.Fraction.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("%w: %s fraction %s outside [0,1]", config.ErrInvalidConfiguration, call, t.Fraction)
			}
			if t.Leverage < 1 {
				return fmt.Errorf("%w: %s leverage %d below 1", config.ErrInvalidConfiguration, call, t.Leverage)
			}
			if prev != nil && (t.Fraction.LessThan(prev.Fraction) || t.Leverage < prev.Leverage) {
				return fmt.Errorf("%w: %s tier weaker than the call below it", config.ErrInvalidConfiguration, call)
			}
			prev = &t
		}
	}
	return nil
}

// Sizer maps a decision onto an order.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer validates cfg and returns a Sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sizer{cfg: cfg}, nil
}

// Size returns the order for decision d at price, committing a tier
// fraction of budget. It returns nil without error when no trade is
// warranted: a Hold, or confidence below the configured minimum. Leverage
// scales P&L, never quantity. A zero-fraction tier yields an order with zero
// quantity, meaning flatten the opposite side only.
func (s *Sizer) Size(ticker string, d strategy.Decision, budget, price decimal.Decimal) (*model.Order, error) {
	if d.Call == indicator.Hold || d.Confidence < s.cfg.MinConfidence {
		return nil, nil
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("size %s: non-positive price %s", ticker, price)
	}
	tier, ok := s.cfg.Tiers[d.Call]
	if !ok {
		return nil, fmt.Errorf("size %s: no tier for %s", ticker, d.Call)
	}
	if budget.IsNegative() {
		budget = decimal.Zero
	}

	qty := budget.Mul(tier.Fraction).Div(price).Truncate(quantityPlaces)
	one := decimal.NewFromInt(1)
	o := &model.Order{
		Ticker:     ticker,
		Quantity:   qty,
		Price:      price,
		Leverage:   tier.Leverage,
		Call:       d.Call.String(),
		Confidence: d.Confidence,
	}
	if d.Call.IsBuy() {
		o.Side = model.SideLong
		o.StopLoss = price.Mul(one.Sub(s.cfg.StopLossPct))
		o.TakeProfit = price.Mul(one.Add(s.cfg.TakeProfitPct))
	} else {
		o.Side = model.SideShort
		o.StopLoss = price.Mul(one.Add(s.cfg.StopLossPct))
		o.TakeProfit = price.Mul(one.Sub(s.cfg.TakeProfitPct))
	}
	return o, nil
}

