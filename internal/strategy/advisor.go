package strategy

import (
	"fmt"
	"sort"
	"time"

	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/model"
)

// Advice is everything derived from one series in one cycle.
type Advice struct {
	Ticker    string                 `json:"ticker"`
	Price     float64                `json:"price"`
	AsOf      time.Time              `json:"as_of"`
	Decision  Decision               `json:"decision"`
	Results   []indicator.Result     `json:"results"`
	Undefined []string               `json:"undefined,omitempty"`
	Pivots    *indicator.PivotLevels `json:"pivots,omitempty"`
}

// Advisor runs a fixed indicator set and aggregator over candle series.
// It holds no mutable state and is safe for concurrent use.
type Advisor struct {
	indicators []indicator.Indicator
	agg        Aggregator
}

// NewAdvisor creates an advisor over the given indicators.
func NewAdvisor(inds []indicator.Indicator, agg Aggregator) *Advisor {
	return &Advisor{indicators: inds, agg: agg}
}

// Convention returns the aggregation rule in use.
func (a *Advisor) Convention() Convention { return a.agg.Convention() }

// Warmup is the longest warm-up of the indicator set.
func (a *Advisor) Warmup() int {
	w := 0
	for _, ind := range a.indicators {
		if ind.Warmup() > w {
			w = ind.Warmup()
		}
	}
	return w
}

// Advise evaluates the series. It returns ErrNoSignals (wrapped) when no
// indicator could produce a result; the partial Advice is still returned
// so callers can report what was undefined.
func (a *Advisor) Advise(s model.Series) (Advice, error) {
	if s.Len() == 0 {
		return Advice{Ticker: s.Ticker}, fmt.Errorf("advise %s: empty series: %w", s.Ticker, ErrNoSignals)
	}
	if err := s.Validate(); err != nil {
		return Advice{Ticker: s.Ticker}, err
	}
	last := s.Last()
	ev := indicator.Evaluate(a.indicators, s)

	adv := Advice{
		Ticker:  s.Ticker,
		Price:   last.Close,
		AsOf:    last.TS,
		Results: ev.Results,
	}
	for name := range ev.Undefined {
		adv.Undefined = append(adv.Undefined, name)
	}
	sort.Strings(adv.Undefined)
	if lv, ok := ev.Pivots(); ok {
		adv.Pivots = &lv
	}

	d, err := a.agg.Aggregate(ev.Results)
	if err != nil {
		return adv, fmt.Errorf("advise %s: %w", s.Ticker, err)
	}
	adv.Decision = d
	return adv, nil
}
