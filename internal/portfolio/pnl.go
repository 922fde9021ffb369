package portfolio

import (
	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

// PnLSummary aggregates realised and unrealised P&L.
type PnLSummary struct {
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	TotalTrades   int             `json:"total_trades"`
	ClosingTrades int             `json:"closing_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	OpenPositions int             `json:"open_positions"`
}

// WinRate is wins over closing trades, zero when nothing has closed.
func (s PnLSummary) WinRate() float64 {
	if s.ClosingTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.ClosingTrades)
}

// Summarize computes P&L from the transaction log and a ledger snapshot.
// Realised P&L is the sum of the gains booked on sell and cover records;
// unrealised P&L marks open lots at prices, skipping tickers without one.
func Summarize(txs []model.Transaction, snap ledger.Snapshot, prices map[string]decimal.Decimal) PnLSummary {
	var s PnLSummary
	s.TotalTrades = len(txs)
	for _, t := range txs {
		if t.Type != model.TxSell && t.Type != model.TxCover {
			continue
		}
		s.ClosingTrades++
		s.RealizedPnL = s.RealizedPnL.Add(t.Gain)
		switch {
		case t.Gain.IsPositive():
			s.Wins++
		case t.Gain.IsNegative():
			s.Losses++
		}
	}

	for _, p := range snap.Longs {
		s.OpenPositions++
		if price, ok := prices[p.Ticker]; ok {
			s.UnrealizedPnL = s.UnrealizedPnL.Add(p.Gain(price))
		}
	}
	for _, sp := range snap.Shorts {
		s.OpenPositions++
		if price, ok := prices[sp.Ticker]; ok {
			s.UnrealizedPnL = s.UnrealizedPnL.Add(sp.Gain(price))
		}
	}
	s.TotalPnL = s.RealizedPnL.Add(s.UnrealizedPnL)
	return s
}
