// Package backtest replays historical bars through the advisor, sizer and
// paper executor against an in-memory ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/execution"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/report"
	"trading-advisorv1/internal/strategy"
)

// Config controls a backtest run.
type Config struct {
	InitialBudget decimal.Decimal
	Advisor       *strategy.Advisor
	Sizer         *portfolio.Sizer
	SlippageBps   int64
	Limits        portfolio.RiskLimits // zero value disables both limits
}

// EquityPoint is the marked-to-market value after one timestamp.
type EquityPoint struct {
	TS    time.Time       `json:"ts"`
	Value decimal.Decimal `json:"value"`
}

// Result summarises a run.
type Result struct {
	InitialBudget  decimal.Decimal     `json:"initial_budget"`
	FinalValue     decimal.Decimal     `json:"final_value"`
	Profit         decimal.Decimal     `json:"profit"`
	ReturnPct      float64             `json:"return_pct"`
	MaxDrawdownPct float64             `json:"max_drawdown_pct"`
	Bars           int                 `json:"bars"`
	Trades         []report.Trade      `json:"trades"`
	Closures       []portfolio.Closure `json:"closures"`
	Rejections     []report.Rejection  `json:"rejections"`
	Transactions   []model.Transaction `json:"transactions"`
	Equity         []EquityPoint       `json:"equity"`
}

// Run walks every series forward bar by bar. Bars of different tickers that
// share a timestamp are processed in argument order. At each bar the open
// lots of that ticker are swept at the close; once the prefix reaches the
// advisor's warm-up it is advised, and any order is sized and filled at the
// close. Equity is marked after every timestamp.
func Run(ctx context.Context, cfg Config, series ...model.Series) (*Result, error) {
	if cfg.Advisor == nil || cfg.Sizer == nil {
		return nil, fmt.Errorf("%w: backtest requires advisor and sizer", config.ErrInvalidConfiguration)
	}
	if !cfg.InitialBudget.IsPositive() {
		return nil, fmt.Errorf("%w: initial budget %s must be positive", config.ErrInvalidConfiguration, cfg.InitialBudget)
	}
	if len(series) == 0 {
		return nil, errors.New("backtest: no series")
	}
	for _, s := range series {
		if s.Len() == 0 {
			return nil, fmt.Errorf("backtest %s: empty series", s.Ticker)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	var clock time.Time
	l, err := ledger.Open(ctx, ledger.NewMemoryStore(), cfg.InitialBudget,
		ledger.WithClock(func() time.Time { return clock }))
	if err != nil {
		return nil, err
	}
	defer l.Close()

	exec := execution.NewPaperExecutor(l, cfg.SlippageBps)
	monitor := portfolio.NewMonitor(l, nil)
	risk := portfolio.NewRiskManager(cfg.Limits, cfg.InitialBudget)
	warmup := cfg.Advisor.Warmup()

	res := &Result{
		InitialBudget: cfg.InitialBudget,
		Trades:        []report.Trade{},
		Closures:      []portfolio.Closure{},
	}
	prices := make(map[string]decimal.Decimal, len(series))
	next := make([]int, len(series))
	peak := cfg.InitialBudget

	for _, ts := range timeline(series) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clock = ts
		for k, s := range series {
			i := next[k]
			if i >= s.Len() || !s.Candles[i].TS.Equal(ts) {
				continue
			}
			next[k]++
			res.Bars++

			price := decimal.NewFromFloat(s.Candles[i].Close)
			prices[s.Ticker] = price

			closures, err := monitor.Sweep(ctx, map[string]decimal.Decimal{s.Ticker: price})
			if err != nil {
				return nil, err
			}
			res.Closures = append(res.Closures, closures...)

			if i+1 < warmup {
				continue
			}
			if err := step(ctx, res, l, exec, risk, cfg, s.Window(i+1), price); err != nil {
				return nil, err
			}
		}

		equity := l.Snapshot().TotalValue(prices)
		if cfg.Limits.MaxDrawdownPct > 0 {
			risk.RecordEquity(equity)
		}
		res.Equity = append(res.Equity, EquityPoint{TS: ts, Value: equity})
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd, _ := peak.Sub(equity).Div(peak).Mul(decimal.NewFromInt(100)).Float64(); dd > res.MaxDrawdownPct {
			res.MaxDrawdownPct = dd
		}
	}

	res.FinalValue = l.Snapshot().TotalValue(prices)
	res.Profit = res.FinalValue.Sub(cfg.InitialBudget)
	res.ReturnPct, _ = res.Profit.Div(cfg.InitialBudget).Mul(decimal.NewFromInt(100)).Float64()
	res.Transactions, err = l.Transactions(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	slog.Info("backtest complete",
		"bars", res.Bars,
		"trades", len(res.Trades),
		"auto_closed", len(res.Closures),
		"final_value", res.FinalValue.StringFixed(2),
		"profit", res.Profit.StringFixed(2),
		"max_drawdown_pct", res.MaxDrawdownPct)
	return res, nil
}

// step advises one prefix and fills the resulting order, if any.
func step(ctx context.Context, res *Result, l *ledger.Ledger, exec *execution.PaperExecutor,
	risk *portfolio.RiskManager, cfg Config, prefix model.Series, price decimal.Decimal) error {
	adv, err := cfg.Advisor.Advise(prefix)
	if errors.Is(err, strategy.ErrNoSignals) {
		return nil
	}
	if err != nil {
		return err
	}
	order, err := cfg.Sizer.Size(prefix.Ticker, adv.Decision, l.Cash(), price)
	if err != nil || order == nil {
		return err
	}

	longs, shorts := l.OpenLots()
	if ok, reason := risk.CanTrade(order, longs+shorts); !ok {
		res.Rejections = append(res.Rejections, report.Rejection{Ticker: order.Ticker, Side: string(order.Side), Reason: reason})
		return nil
	}
	fill, err := exec.Execute(ctx, order)
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		res.Rejections = append(res.Rejections, report.Rejection{Ticker: order.Ticker, Side: string(order.Side), Reason: "insufficient funds"})
		return nil
	case err != nil:
		return err
	}
	res.Trades = append(res.Trades, report.TradeFromFill(fill))
	return nil
}

// timeline merges the bar timestamps of every series, ascending and unique.
func timeline(series []model.Series) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	for _, s := range series {
		for _, c := range s.Candles {
			if k := c.TS.UnixNano(); !seen[k] {
				seen[k] = true
				out = append(out, c.TS)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
