// Package strategy fuses indicator results into one trading decision.
//
// Two aggregation conventions exist and are selected per deployment:
// categorical voting over indicator calls, and averaging of continuous
// scores. Both sit behind the Aggregator interface.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"trading-advisorv1/internal/indicator"
)

// ErrNoSignals is returned when every indicator was undefined.
var ErrNoSignals = errors.New("no defined indicator results")

// Convention selects an aggregation rule.
type Convention string

const (
	Categorical Convention = "categorical"
	Continuous  Convention = "continuous"
)

// ParseConvention accepts "categorical" or "continuous" (case-insensitive).
func ParseConvention(s string) (Convention, error) {
	switch Convention(strings.ToLower(strings.TrimSpace(s))) {
	case Categorical:
		return Categorical, nil
	case Continuous:
		return Continuous, nil
	}
	return "", fmt.Errorf("unknown scoring convention %q", s)
}

// Decision is the fused output for one ticker.
type Decision struct {
	Call       indicator.Call `json:"call"`
	Confidence float64        `json:"confidence"` // [0, 1]
	Convention Convention     `json:"convention"`
	Votes      int            `json:"votes"` // categorical weighted sum
	Score      float64        `json:"score"` // continuous mean score
	Count      int            `json:"count"` // defined indicators aggregated
}

// Aggregator fuses a set of defined indicator results.
type Aggregator interface {
	Convention() Convention
	Aggregate(results []indicator.Result) (Decision, error)
}

// NewAggregator returns the aggregator for a convention.
func NewAggregator(c Convention) (Aggregator, error) {
	switch c {
	case Categorical:
		return CategoricalAggregator{}, nil
	case Continuous:
		return ContinuousAggregator{}, nil
	}
	return nil, fmt.Errorf("unknown scoring convention %q", c)
}

// CategoricalAggregator sums call weights (strong ±2, plain ±1, hold 0).
// Sum >= 4 is Strong Buy, >= 1 Buy, <= -4 Strong Sell, <= -1 Sell.
// Confidence is |sum| / (2·n).
type CategoricalAggregator struct{}

func (CategoricalAggregator) Convention() Convention { return Categorical }

func (CategoricalAggregator) Aggregate(results []indicator.Result) (Decision, error) {
	if len(results) == 0 {
		return Decision{}, ErrNoSignals
	}
	sum := 0
	for _, r := range results {
		sum += r.Call.Weight()
	}
	d := Decision{
		Convention: Categorical,
		Votes:      sum,
		Count:      len(results),
		Confidence: math.Min(1, math.Abs(float64(sum))/float64(2*len(results))),
	}
	switch {
	case sum >= 4:
		d.Call = indicator.StrongBuy
	case sum >= 1:
		d.Call = indicator.Buy
	case sum <= -4:
		d.Call = indicator.StrongSell
	case sum <= -1:
		d.Call = indicator.Sell
	default:
		d.Call = indicator.Hold
	}
	return d, nil
}

// ContinuousAggregator averages scores and maps the mean onto seven tiers.
// Confidence is the distance of the mean from neutral, |score-50|/50.
type ContinuousAggregator struct{}

func (ContinuousAggregator) Convention() Convention { return Continuous }

func (ContinuousAggregator) Aggregate(results []indicator.Result) (Decision, error) {
	if len(results) == 0 {
		return Decision{}, ErrNoSignals
	}
	total := 0.0
	for _, r := range results {
		total += r.Score
	}
	score := total / float64(len(results))
	return Decision{
		Call:       tierFor(score),
		Convention: Continuous,
		Score:      score,
		Count:      len(results),
		Confidence: math.Min(1, math.Abs(score-50)/50),
	}, nil
}

func tierFor(score float64) indicator.Call {
	switch {
	case score > 90:
		return indicator.VeryStrongBuy
	case score > 80:
		return indicator.StrongBuy
	case score > 60:
		return indicator.Buy
	case score < 10:
		return indicator.VeryStrongSell
	case score < 20:
		return indicator.StrongSell
	case score < 40:
		return indicator.Sell
	}
	return indicator.Hold
}
