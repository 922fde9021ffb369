// Package report holds the per-ticker and per-cycle results that are
// published to Redis, served over HTTP and rendered on the terminal.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/execution"
	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/strategy"
)

// Recommendation is one indicator's view of a ticker.
type Recommendation struct {
	Strategy     string         `json:"strategy"`
	Call         indicator.Call `json:"call"`
	Score        float64        `json:"score"`
	Rationale    string         `json:"rationale"`
	CurrentValue float64        `json:"current_value"`
}

// TickerReport is the advice for one ticker in one cycle.
type TickerReport struct {
	Ticker          string                 `json:"ticker"`
	Term            string                 `json:"term"`
	Price           float64                `json:"price"`
	AsOf            time.Time              `json:"as_of"`
	Decision        strategy.Decision      `json:"decision"`
	Recommendations []Recommendation       `json:"recommendations"`
	Undefined       []string               `json:"undefined,omitempty"`
	Pivots          *indicator.PivotLevels `json:"pivots,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// FromAdvice converts an Advice into its report form.
func FromAdvice(term string, adv strategy.Advice) TickerReport {
	tr := TickerReport{
		Ticker:    adv.Ticker,
		Term:      term,
		Price:     adv.Price,
		AsOf:      adv.AsOf,
		Decision:  adv.Decision,
		Undefined: adv.Undefined,
		Pivots:    adv.Pivots,
	}
	tr.Recommendations = make([]Recommendation, 0, len(adv.Results))
	for _, r := range adv.Results {
		tr.Recommendations = append(tr.Recommendations, Recommendation{
			Strategy:     r.Name,
			Call:         r.Call,
			Score:        r.Score,
			Rationale:    r.Rationale,
			CurrentValue: r.Value,
		})
	}
	return tr
}

// Failed builds the report of a ticker that could not be advised.
func Failed(ticker, term string, err error) TickerReport {
	return TickerReport{Ticker: ticker, Term: term, Error: err.Error()}
}

// Trade summarises one executed order.
type Trade struct {
	Ticker     string          `json:"ticker"`
	Side       string          `json:"side"`
	Call       string          `json:"call"`
	Quantity   decimal.Decimal `json:"quantity"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	Leverage   int             `json:"leverage"`
	LotID      string          `json:"lot_id,omitempty"`
	Flattened  int             `json:"flattened_lots"`
	Realized   decimal.Decimal `json:"realized_gain"`
	Confidence float64         `json:"confidence"`
}

// TradeFromFill converts an execution fill.
func TradeFromFill(f execution.Fill) Trade {
	t := Trade{
		Ticker:     f.Order.Ticker,
		Side:       string(f.Order.Side),
		Call:       f.Order.Call,
		Quantity:   f.Order.Quantity,
		FillPrice:  f.FillPrice,
		Leverage:   f.Order.Leverage,
		LotID:      f.LotID,
		Confidence: f.Order.Confidence,
	}
	if f.Flattened != nil {
		t.Flattened = len(f.Flattened.Transactions)
		t.Realized = f.Flattened.Gain
	}
	return t
}

// Rejection is an order that was sized but not executed.
type Rejection struct {
	Ticker string `json:"ticker"`
	Side   string `json:"side"`
	Reason string `json:"reason"`
}

// CycleReport is everything one trading cycle produced.
type CycleReport struct {
	ID          string              `json:"id"`
	Term        string              `json:"term"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Tickers     []TickerReport      `json:"tickers"`
	Skipped     []string            `json:"skipped,omitempty"` // market closed
	Trades      []Trade             `json:"trades"`
	Rejections  []Rejection         `json:"rejections,omitempty"`
	Closures    []portfolio.Closure `json:"auto_closed"`
	Cash        decimal.Decimal     `json:"cash"`
	TotalValue  decimal.Decimal     `json:"total_value"`
	OpenLongs   int                 `json:"open_longs"`
	OpenShorts  int                 `json:"open_shorts"`
	DrawdownPct float64             `json:"drawdown_pct"`
	Errors      []string            `json:"errors,omitempty"`
}

// Duration is the wall time of the cycle.
func (c *CycleReport) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
