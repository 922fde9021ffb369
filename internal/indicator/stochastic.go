package indicator

import (
	"fmt"
	"math"

	"trading-advisorv1/internal/model"
)

// Stochastic is the %K/%D oscillator of the close within the rolling
// high/low range. A flat range yields %K = 50.
type Stochastic struct {
	window int
	smooth int
}

// NewStochastic validates window >= 2 and smooth >= 1.
func NewStochastic(window, smooth int) (*Stochastic, error) {
	if window < 2 || smooth < 1 {
		return nil, fmt.Errorf("stochastic: need window >= 2 and smooth >= 1, got %d/%d", window, smooth)
	}
	return &Stochastic{window: window, smooth: smooth}, nil
}

func (s *Stochastic) Name() string { return "Stochastic Oscillator" }
func (s *Stochastic) Kind() Kind   { return KindStochastic }
func (s *Stochastic) Warmup() int  { return s.window + s.smooth - 1 }

func (s *Stochastic) Calculate(series model.Series) (Frame, error) {
	if err := needBars(s.Name(), series, 1); err != nil {
		return Frame{}, err
	}
	f := newFrame(series)
	closes := series.Closes()
	n := len(closes)
	hi := rollingMax(series.Highs(), s.window)
	lo := rollingMin(series.Lows(), s.window)

	k := nanSlice(n)
	d := nanSlice(n)
	f.Columns["stoch_k"] = k
	f.Columns["stoch_d"] = d

	start := s.window - 1
	if n <= start {
		return f, nil
	}
	for i := start; i < n; i++ {
		if math.IsNaN(hi[i]) || math.IsNaN(lo[i]) {
			continue
		}
		rng := hi[i] - lo[i]
		if rng <= 0 {
			k[i] = 50
			continue
		}
		k[i] = clamp(100*(closes[i]-lo[i])/rng, 0, 100)
	}
	copy(d[start:], rollingMean(k[start:], s.smooth))
	return f, nil
}

func (s *Stochastic) Analyze(f Frame) (Result, error) {
	ks, err := f.lastDefined("stoch_k", 1)
	if err != nil {
		return Result{}, err
	}
	ds, err := f.lastDefined("stoch_d", 1)
	if err != nil {
		return Result{}, err
	}
	k, d := ks[0], ds[0]
	res := Result{
		Name:  s.Name(),
		Kind:  s.Kind(),
		Value: k,
		TS:    f.Series.Last().TS,
		Score: interpolate(k, []float64{0, 20, 80, 100}, []float64{100, 70, 30, 0}),
	}
	switch {
	case k < 20:
		res.Call = Buy
		res.Rationale = fmt.Sprintf("%%K %.2f below 20 (oversold), %%D %.2f", k, d)
	case k > 80:
		res.Call = Sell
		res.Rationale = fmt.Sprintf("%%K %.2f above 80 (overbought), %%D %.2f", k, d)
	default:
		res.Call = Hold
		res.Rationale = fmt.Sprintf("%%K %.2f is neutral, %%D %.2f", k, d)
	}
	return res, nil
}
