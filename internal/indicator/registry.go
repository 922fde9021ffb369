package indicator

import (
	"errors"
	"fmt"
	"log/slog"

	"trading-advisorv1/internal/model"
)

// New builds the indicator registered under kind.
func New(kind Kind, p Params) (Indicator, error) {
	switch kind {
	case KindMovingAverage:
		ind, err := NewMovingAverageCrossover(p.ShortWindow, p.LongWindow)
		if err != nil {
			return nil, err
		}
		return ind, nil
	case KindRSI:
		ind, err := NewRSI(p.RSIWindow)
		if err != nil {
			return nil, err
		}
		return ind, nil
	case KindMACD:
		ind, err := NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal)
		if err != nil {
			return nil, err
		}
		return ind, nil
	case KindBollinger:
		ind, err := NewBollingerBands(p.BollingerWindow, p.BollingerK)
		if err != nil {
			return nil, err
		}
		return ind, nil
	case KindStochastic:
		smooth := p.StochasticSmooth
		if smooth == 0 {
			smooth = 3
		}
		ind, err := NewStochastic(p.StochasticWindow, smooth)
		if err != nil {
			return nil, err
		}
		return ind, nil
	case KindPivot:
		return NewPivotPoints(), nil
	default:
		return nil, fmt.Errorf("unknown indicator kind %q", kind)
	}
}

// NewSet builds one indicator per kind, failing on the first invalid entry.
func NewSet(kinds []Kind, p Params) ([]Indicator, error) {
	out := make([]Indicator, 0, len(kinds))
	for _, k := range kinds {
		ind, err := New(k, p)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", k, err)
		}
		out = append(out, ind)
	}
	return out, nil
}

// Evaluation is the outcome of running an indicator set over one series.
type Evaluation struct {
	Results   []Result
	Frames    map[Kind]Frame
	Undefined map[string]error // indicator name → reason, excluded from aggregation
}

// Evaluate calculates and analyzes every indicator. Indicators that cannot
// produce a valid result are reported in Undefined instead of Results.
func Evaluate(inds []Indicator, s model.Series) Evaluation {
	ev := Evaluation{
		Frames:    make(map[Kind]Frame, len(inds)),
		Undefined: make(map[string]error),
	}
	for _, ind := range inds {
		f, err := ind.Calculate(s)
		if err != nil {
			ev.Undefined[ind.Name()] = err
			continue
		}
		ev.Frames[ind.Kind()] = f
		res, err := ind.Analyze(f)
		if err != nil {
			if !errors.Is(err, ErrUndefined) {
				slog.Warn("indicator analyze failed", "indicator", ind.Name(), "ticker", s.Ticker, "err", err)
			}
			ev.Undefined[ind.Name()] = err
			continue
		}
		if !validScore(res.Score) {
			ev.Undefined[ind.Name()] = fmt.Errorf("%s: score %v out of range: %w", ind.Name(), res.Score, ErrUndefined)
			continue
		}
		ev.Results = append(ev.Results, res)
	}
	return ev
}

// Pivots returns the pivot levels if the set contained Pivot Points.
func (ev Evaluation) Pivots() (PivotLevels, bool) {
	f, ok := ev.Frames[KindPivot]
	if !ok {
		return PivotLevels{}, false
	}
	lv, err := NewPivotPoints().Levels(f)
	if err != nil {
		return PivotLevels{}, false
	}
	return lv, true
}
