package indicator

import (
	"fmt"

	"trading-advisorv1/internal/model"
)

// MACD is the fast/slow EMA spread with an EMA signal line.
type MACD struct {
	fast   int
	slow   int
	signal int
}

// NewMACD validates 1 <= fast < slow and signal >= 1.
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if fast < 1 || slow <= fast || signal < 1 {
		return nil, fmt.Errorf("macd: need 1 <= fast < slow and signal >= 1, got %d/%d/%d", fast, slow, signal)
	}
	return &MACD{fast: fast, slow: slow, signal: signal}, nil
}

func (m *MACD) Name() string { return "MACD" }
func (m *MACD) Kind() Kind   { return KindMACD }

// Warmup covers the slow EMA seed, the signal seed and one extra bar for
// the crossover comparison.
func (m *MACD) Warmup() int { return m.slow + m.signal }

func (m *MACD) Calculate(s model.Series) (Frame, error) {
	if err := needBars(m.Name(), s, 1); err != nil {
		return Frame{}, err
	}
	f := newFrame(s)
	closes := s.Closes()
	n := len(closes)

	macd := nanSlice(n)
	signal := nanSlice(n)
	hist := nanSlice(n)
	f.Columns["macd"] = macd
	f.Columns["macd_signal"] = signal
	f.Columns["macd_hist"] = hist

	fast := ewm(closes, m.fast)
	slow := ewm(closes, m.slow)
	start := m.slow - 1
	if n <= start {
		return f, nil
	}
	for i := start; i < n; i++ {
		macd[i] = fast[i] - slow[i]
	}
	sig := ewm(macd[start:], m.signal)
	for i, v := range sig {
		signal[start+i] = v
		hist[start+i] = macd[start+i] - v
	}
	return f, nil
}

func (m *MACD) Analyze(f Frame) (Result, error) {
	macd, err := f.lastDefined("macd", 2)
	if err != nil {
		return Result{}, err
	}
	sig, err := f.lastDefined("macd_signal", 2)
	if err != nil {
		return Result{}, err
	}
	prevDiff := macd[0] - sig[0]
	diff := macd[1] - sig[1]

	res := Result{
		Name:  m.Name(),
		Kind:  m.Kind(),
		Value: macd[1],
		TS:    f.Series.Last().TS,
		Score: relativeScore(diff, sig[1]),
	}
	switch {
	case prevDiff <= 0 && diff > 0:
		res.Call = Buy
		res.Rationale = fmt.Sprintf("MACD %.4f crossed above signal %.4f", macd[1], sig[1])
	case prevDiff >= 0 && diff < 0:
		res.Call = Sell
		res.Rationale = fmt.Sprintf("MACD %.4f crossed below signal %.4f", macd[1], sig[1])
	default:
		res.Call = Hold
		res.Rationale = fmt.Sprintf("no crossover: MACD %.4f, signal %.4f", macd[1], sig[1])
	}
	return res, nil
}
