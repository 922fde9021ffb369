package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/model"
)

// Cash returns the current cash budget.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Positions returns a copy of the open long lots in FIFO order.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Position, len(l.longs))
	copy(out, l.longs)
	return out
}

// ShortPositions returns a copy of the open short lots in FIFO order.
func (l *Ledger) ShortPositions() []model.ShortPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ShortPosition, len(l.shorts))
	copy(out, l.shorts)
	return out
}

// OpenQuantity returns the open long and short quantity for ticker.
func (l *Ledger) OpenQuantity(ticker string) (long, short decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.longs {
		if p.Ticker == ticker {
			long = long.Add(p.Quantity)
		}
	}
	for _, s := range l.shorts {
		if s.Ticker == ticker {
			short = short.Add(s.Quantity)
		}
	}
	return long, short
}

// OpenLots returns the number of open long and short lots.
func (l *Ledger) OpenLots() (longs, shorts int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.longs), len(l.shorts)
}

// MarkMonitoring moves the given lots from Open to Monitoring.
func (l *Ledger) MarkMonitoring(ids ...string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.longs {
		if _, ok := set[l.longs[i].ID]; ok && l.longs[i].State == model.LotOpen {
			l.longs[i].State = model.LotMonitoring
		}
	}
	for i := range l.shorts {
		if _, ok := set[l.shorts[i].ID]; ok && l.shorts[i].State == model.LotOpen {
			l.shorts[i].State = model.LotMonitoring
		}
	}
}

// TotalValue marks every lot to market under one lock. See Snapshot.TotalValue.
func (l *Ledger) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	snap := l.Snapshot()
	return snap.TotalValue(prices)
}

// Snapshot is a consistent copy of the ledger for reporting.
type Snapshot struct {
	Cash   decimal.Decimal       `json:"cash"`
	Longs  []model.Position      `json:"positions"`
	Shorts []model.ShortPosition `json:"short_positions"`
}

// Snapshot returns cash and lots read under one lock.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		Cash:   l.cash,
		Longs:  make([]model.Position, len(l.longs)),
		Shorts: make([]model.ShortPosition, len(l.shorts)),
	}
	copy(s.Longs, l.longs)
	copy(s.Shorts, l.shorts)
	return s
}

// Transactions returns the newest transactions first.
func (l *Ledger) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	return l.store.Transactions(ctx, ticker, limit)
}

// TotalValue marks every lot to market: cash + Σ long value − Σ short liability.
// A long lot's value is floored at zero; a ticker missing from prices is
// marked at its entry price.
func (s Snapshot) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := s.Cash
	for _, p := range s.Longs {
		price, ok := prices[p.Ticker]
		if !ok {
			price = p.EntryPrice
		}
		v := p.Cost().Add(p.Gain(price))
		if v.IsNegative() {
			v = decimal.Zero
		}
		total = total.Add(v)
	}
	for _, sh := range s.Shorts {
		price, ok := prices[sh.Ticker]
		if !ok {
			price = sh.EntryPrice
		}
		total = total.Sub(sh.Proceeds().Sub(sh.Gain(price)))
	}
	return total
}
