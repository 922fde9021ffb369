package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candle is one OHLCV bar for a single ticker.
// Prices are float64 in the quote currency of the ticker.
type Candle struct {
	Ticker string    `json:"ticker"`
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Series is an ordered run of candles for one ticker at one interval.
// Candles are ascending by TS with no duplicate timestamps.
type Series struct {
	Ticker   string   `json:"ticker"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Candles) }

// Last returns the most recent bar. The series must not be empty.
func (s Series) Last() Candle { return s.Candles[len(s.Candles)-1] }

// Validate checks ordering and timestamp uniqueness.
func (s Series) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		prev, cur := s.Candles[i-1].TS, s.Candles[i].TS
		if !cur.After(prev) {
			return fmt.Errorf("series %s: bar %d at %s not after %s", s.Ticker, i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}

// Window returns a view of the first n bars. The backing array is shared.
func (s Series) Window(n int) Series {
	if n > len(s.Candles) {
		n = len(s.Candles)
	}
	return Series{Ticker: s.Ticker, Interval: s.Interval, Candles: s.Candles[:n]}
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := Series{Ticker: s.Ticker, Interval: s.Interval, Candles: make([]Candle, len(s.Candles))}
	copy(out.Candles, s.Candles)
	return out
}

// Closes returns the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}
