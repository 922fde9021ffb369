package indicator

import (
	"fmt"

	"trading-advisorv1/internal/model"
)

// MovingAverageCrossover compares a short and a long simple moving average
// of the close and signals on a sign change between the last two bars.
type MovingAverageCrossover struct {
	short int
	long  int
}

// NewMovingAverageCrossover validates 1 <= short < long.
func NewMovingAverageCrossover(short, long int) (*MovingAverageCrossover, error) {
	if short < 1 || long <= short {
		return nil, fmt.Errorf("ma crossover: need 1 <= short < long, got %d/%d", short, long)
	}
	return &MovingAverageCrossover{short: short, long: long}, nil
}

func (m *MovingAverageCrossover) Name() string { return "MA Crossover" }
func (m *MovingAverageCrossover) Kind() Kind   { return KindMovingAverage }
func (m *MovingAverageCrossover) Warmup() int  { return m.long + 1 }

func (m *MovingAverageCrossover) Calculate(s model.Series) (Frame, error) {
	if err := needBars(m.Name(), s, 1); err != nil {
		return Frame{}, err
	}
	f := newFrame(s)
	closes := s.Closes()
	f.Columns["sma_short"] = rollingMean(closes, m.short)
	f.Columns["sma_long"] = rollingMean(closes, m.long)
	return f, nil
}

func (m *MovingAverageCrossover) Analyze(f Frame) (Result, error) {
	shorts, err := f.lastDefined("sma_short", 2)
	if err != nil {
		return Result{}, err
	}
	longs, err := f.lastDefined("sma_long", 2)
	if err != nil {
		return Result{}, err
	}

	prevDiff := shorts[0] - longs[0]
	diff := shorts[1] - longs[1]

	res := Result{
		Name:  m.Name(),
		Kind:  m.Kind(),
		Value: shorts[1],
		TS:    f.Series.Last().TS,
		Score: relativeScore(diff, longs[1]),
	}
	switch {
	case prevDiff <= 0 && diff > 0:
		res.Call = Buy
		res.Rationale = fmt.Sprintf("SMA%d crossed above SMA%d (golden cross)", m.short, m.long)
	case prevDiff >= 0 && diff < 0:
		res.Call = Sell
		res.Rationale = fmt.Sprintf("SMA%d crossed below SMA%d (death cross)", m.short, m.long)
	default:
		res.Call = Hold
		res.Rationale = fmt.Sprintf("no crossover: SMA%d %.4f vs SMA%d %.4f", m.short, shorts[1], m.long, longs[1])
	}
	return res, nil
}
