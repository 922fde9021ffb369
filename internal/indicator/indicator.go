// Package indicator provides technical indicator calculations over candle series.
//
// Every indicator is a pure pair of functions: Calculate derives named columns
// from a series, Analyze reads the enriched frame and produces a Result that
// carries both a categorical Call and a continuous Score in [0, 100]
// (above 50 is bullish). Indicators never mutate their input.
package indicator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"trading-advisorv1/internal/model"
)

// ErrUndefined is returned when a series is too short (or too degenerate)
// for an indicator to produce a value.
var ErrUndefined = errors.New("indicator undefined")

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the display name (e.g., "MA Crossover").
	Name() string

	// Kind returns the registry tag.
	Kind() Kind

	// Warmup returns the minimum number of bars Analyze needs.
	Warmup() int

	// Calculate returns a copy of the series enriched with derived columns.
	Calculate(s model.Series) (Frame, error)

	// Analyze reads the latest values of an enriched frame.
	Analyze(f Frame) (Result, error)
}

// Kind is the tagged identifier of an indicator implementation.
type Kind string

const (
	KindMovingAverage Kind = "MA"
	KindRSI           Kind = "RSI"
	KindMACD          Kind = "MACD"
	KindBollinger     Kind = "BB"
	KindStochastic    Kind = "STOCH"
	KindPivot         Kind = "PIVOT"
)

// AllKinds lists every registered kind in report order.
var AllKinds = []Kind{KindMovingAverage, KindRSI, KindMACD, KindBollinger, KindStochastic, KindPivot}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown indicator kind %q", s)
}

// Result is the analysis of one indicator at the latest bar.
type Result struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Call      Call      `json:"call"`
	Score     float64   `json:"score"`
	Rationale string    `json:"rationale"`
	Value     float64   `json:"current_value"` // headline value (RSI, %K, MACD, ...)
	TS        time.Time `json:"ts"`
}

// Params holds the window lengths shared by a term preset.
type Params struct {
	ShortWindow      int
	LongWindow       int
	RSIWindow        int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	BollingerWindow  int
	BollingerK       float64
	StochasticWindow int
	StochasticSmooth int
}

// DefaultParams mirrors the very-short term preset.
func DefaultParams() Params {
	return Params{
		ShortWindow:      5,
		LongWindow:       20,
		RSIWindow:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		BollingerWindow:  20,
		BollingerK:       2,
		StochasticWindow: 14,
		StochasticSmooth: 3,
	}
}
