package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

var bpsDivisor = decimal.NewFromInt(10000)

var _ Executor = (*PaperExecutor)(nil)

// PaperExecutor simulates order execution against the ledger.
// Useful for backtesting and paper trading.
type PaperExecutor struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
	fills  []Fill
	now    func() time.Time

	// Simulation parameters
	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
}

// NewPaperExecutor creates a paper trading executor.
// slippageBps controls simulated slippage in basis points.
func NewPaperExecutor(l *ledger.Ledger, slippageBps int64) *PaperExecutor {
	return &PaperExecutor{
		ledger:      l,
		fills:       make([]Fill, 0, 256),
		now:         func() time.Time { return time.Now().UTC() },
		slippageBps: slippageBps,
	}
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// fillPrice applies slippage against the trader: buys fill higher, sells lower.
func (p *PaperExecutor) fillPrice(side model.Side, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if p.slippageBps <= 0 {
		return price, decimal.Zero
	}
	slip := price.Mul(decimal.NewFromInt(p.slippageBps)).Div(bpsDivisor)
	if side == model.SideLong {
		return price.Add(slip), slip
	}
	return price.Sub(slip), slip
}

// Execute fills order in two steps. First it flattens the opposite side on
// the ticker: a long order covers every open short, a short order sells
// every open long. Then, if the order has a quantity, it opens the new lot.
// A failed open (typically ledger.ErrInsufficientFunds) is returned wrapped
// together with the fill so far; the flatten step is not undone.
func (p *PaperExecutor) Execute(ctx context.Context, order *model.Order) (Fill, error) {
	price, slip := p.fillPrice(order.Side, order.Price)
	fill := Fill{Order: *order, FillPrice: price, Slippage: slip, FilledAt: p.now()}

	long, short := p.ledger.OpenQuantity(order.Ticker)
	switch {
	case order.Side == model.SideLong && short.IsPositive():
		rc, err := p.ledger.CoverAll(ctx, order.Ticker, price)
		if err != nil {
			return fill, fmt.Errorf("execute %s: flatten shorts: %w", order.Ticker, err)
		}
		fill.Flattened = &rc
	case order.Side == model.SideShort && long.IsPositive():
		rc, err := p.ledger.SellAll(ctx, order.Ticker, price)
		if err != nil {
			return fill, fmt.Errorf("execute %s: flatten longs: %w", order.Ticker, err)
		}
		fill.Flattened = &rc
	}

	if order.Quantity.IsPositive() {
		req := ledger.OpenRequest{
			Ticker: order.Ticker, Quantity: order.Quantity, Price: price,
			StopLoss: order.StopLoss, TakeProfit: order.TakeProfit, Leverage: order.Leverage,
		}
		var (
			tx  model.Transaction
			err error
		)
		if order.Side == model.SideLong {
			var lot model.Position
			lot, tx, err = p.ledger.Buy(ctx, req)
			fill.LotID = lot.ID
		} else {
			var lot model.ShortPosition
			lot, tx, err = p.ledger.Short(ctx, req)
			fill.LotID = lot.ID
		}
		if err != nil {
			p.record(fill)
			return fill, fmt.Errorf("execute %s: open %s: %w", order.Ticker, order.Side, err)
		}
		fill.Opened = &tx
	}

	p.record(fill)
	log.Printf("[paper] %s %s qty=%s price=%s (slip=%s) lev=%d call=%s flattened=%t lot=%s",
		order.Side, order.Ticker, order.Quantity, price, slip, order.Leverage, order.Call,
		fill.Flattened != nil, fill.LotID)
	return fill, nil
}

func (p *PaperExecutor) record(f Fill) {
	p.mu.Lock()
	p.fills = append(p.fills, f)
	p.mu.Unlock()
}
