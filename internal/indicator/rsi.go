package indicator

import (
	"fmt"

	"trading-advisorv1/internal/model"
)

// RSI is the relative strength index with simple-mean averaging of gains
// and losses. When the average loss is zero the RSI is defined as 100.
type RSI struct {
	window int
}

// NewRSI validates window >= 1.
func NewRSI(window int) (*RSI, error) {
	if window < 1 {
		return nil, fmt.Errorf("rsi: window must be >= 1, got %d", window)
	}
	return &RSI{window: window}, nil
}

func (r *RSI) Name() string { return "RSI" }
func (r *RSI) Kind() Kind   { return KindRSI }
func (r *RSI) Warmup() int  { return r.window + 1 }

func (r *RSI) Calculate(s model.Series) (Frame, error) {
	if err := needBars(r.Name(), s, 1); err != nil {
		return Frame{}, err
	}
	f := newFrame(s)
	closes := s.Closes()
	out := nanSlice(len(closes))
	f.Columns["rsi"] = out
	if len(closes) < 2 {
		return f, nil
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}
	avgGain := rollingMean(gains, r.window)
	avgLoss := rollingMean(losses, r.window)
	for j := r.window - 1; j < len(gains); j++ {
		out[j+1] = rsiValue(avgGain[j], avgLoss[j])
	}
	return f, nil
}

// rsiValue treats rounding residue from the rolling sum as zero.
func rsiValue(avgGain, avgLoss float64) float64 {
	const eps = 1e-12
	if avgLoss < eps {
		return 100
	}
	if avgGain < eps {
		return 0
	}
	rs := avgGain / avgLoss
	return clamp(100-100/(1+rs), 0, 100)
}

func (r *RSI) Analyze(f Frame) (Result, error) {
	vals, err := f.lastDefined("rsi", 1)
	if err != nil {
		return Result{}, err
	}
	v := vals[0]
	res := Result{
		Name:  r.Name(),
		Kind:  r.Kind(),
		Value: v,
		TS:    f.Series.Last().TS,
		Score: interpolate(v, []float64{0, 30, 70, 100}, []float64{100, 70, 30, 0}),
	}
	switch {
	case v < 30:
		res.Call = Buy
		res.Rationale = fmt.Sprintf("RSI %.2f below 30 (oversold)", v)
	case v > 70:
		res.Call = Sell
		res.Rationale = fmt.Sprintf("RSI %.2f above 70 (overbought)", v)
	default:
		res.Call = Hold
		res.Rationale = fmt.Sprintf("RSI %.2f is neutral", v)
	}
	return res, nil
}
