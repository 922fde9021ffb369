package indicator

import (
	"fmt"
	"math"

	"trading-advisorv1/internal/model"
)

// BollingerBands places bands k sample standard deviations around a
// simple moving average of the close.
type BollingerBands struct {
	window int
	k      float64
}

// NewBollingerBands validates window >= 2 and k > 0.
func NewBollingerBands(window int, k float64) (*BollingerBands, error) {
	if window < 2 || k <= 0 {
		return nil, fmt.Errorf("bollinger: need window >= 2 and k > 0, got %d/%.2f", window, k)
	}
	return &BollingerBands{window: window, k: k}, nil
}

func (b *BollingerBands) Name() string { return "Bollinger Bands" }
func (b *BollingerBands) Kind() Kind   { return KindBollinger }
func (b *BollingerBands) Warmup() int  { return b.window }

func (b *BollingerBands) Calculate(s model.Series) (Frame, error) {
	if err := needBars(b.Name(), s, 1); err != nil {
		return Frame{}, err
	}
	f := newFrame(s)
	closes := s.Closes()
	middle := rollingMean(closes, b.window)
	std := rollingSampleStd(closes, b.window)
	upper := nanSlice(len(closes))
	lower := nanSlice(len(closes))
	for i := range closes {
		if math.IsNaN(middle[i]) || math.IsNaN(std[i]) {
			continue
		}
		upper[i] = middle[i] + b.k*std[i]
		lower[i] = middle[i] - b.k*std[i]
	}
	f.Columns["bb_middle"] = middle
	f.Columns["bb_upper"] = upper
	f.Columns["bb_lower"] = lower
	return f, nil
}

func (b *BollingerBands) Analyze(f Frame) (Result, error) {
	mid, err := f.lastDefined("bb_middle", 1)
	if err != nil {
		return Result{}, err
	}
	up, err := f.lastDefined("bb_upper", 1)
	if err != nil {
		return Result{}, err
	}
	lo, err := f.lastDefined("bb_lower", 1)
	if err != nil {
		return Result{}, err
	}
	last := f.Series.Last()
	price := last.Close

	res := Result{
		Name:  b.Name(),
		Kind:  b.Kind(),
		Value: price,
		TS:    last.TS,
		Score: bollingerScore(price, lo[0], mid[0], up[0]),
	}
	switch {
	case price > up[0]:
		res.Call = Sell
		res.Rationale = fmt.Sprintf("close %.4f above upper band %.4f (overextended)", price, up[0])
	case price < lo[0]:
		res.Call = Buy
		res.Rationale = fmt.Sprintf("close %.4f below lower band %.4f", price, lo[0])
	default:
		res.Call = Hold
		res.Rationale = fmt.Sprintf("close %.4f inside bands [%.4f, %.4f]", price, lo[0], up[0])
	}
	return res, nil
}

// bollingerScore maps lower→70, middle→50, upper→30 inside the bands and
// decays toward 100 (below) or 0 (above) outside them, one band-width per
// e-fold. Zero-width bands collapse to 0, 50 or 100.
func bollingerScore(price, lower, middle, upper float64) float64 {
	if upper <= lower {
		switch {
		case price < middle:
			return 100
		case price > middle:
			return 0
		default:
			return 50
		}
	}
	switch {
	case price < lower:
		d := (lower - price) / (middle - lower)
		return clamp(70+30*(1-math.Exp(-d)), 0, 100)
	case price > upper:
		d := (price - upper) / (upper - middle)
		return clamp(30*math.Exp(-d), 0, 100)
	}
	return interpolate(price, []float64{lower, middle, upper}, []float64{70, 50, 30})
}
