package indicator

import (
	"fmt"
	"math"

	"trading-advisorv1/internal/model"
)

// PivotLevels are the classic floor-trader levels.
type PivotLevels struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`
}

// ComputePivotLevels derives levels from a reference high, low and close.
func ComputePivotLevels(high, low, close float64) PivotLevels {
	p := (high + low + close) / 3
	return PivotLevels{
		Pivot: p,
		R1:    2*p - low,
		S1:    2*p - high,
		R2:    p + (high - low),
		S2:    p - (high - low),
		R3:    high + 2*(p-low),
		S3:    low - 2*(high-p),
	}
}

// PivotPoints uses the whole series as the reference period: the highest
// high, the lowest low and the latest close.
type PivotPoints struct{}

func NewPivotPoints() *PivotPoints { return &PivotPoints{} }

func (p *PivotPoints) Name() string { return "Pivot Points" }
func (p *PivotPoints) Kind() Kind   { return KindPivot }
func (p *PivotPoints) Warmup() int  { return 1 }

var pivotColumns = []string{"pivot", "r1", "r2", "r3", "s1", "s2", "s3"}

func (p *PivotPoints) Calculate(s model.Series) (Frame, error) {
	if err := needBars(p.Name(), s, 1); err != nil {
		return Frame{}, err
	}
	f := newFrame(s)
	high, low := math.Inf(-1), math.Inf(1)
	for _, c := range s.Candles {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	lv := ComputePivotLevels(high, low, s.Last().Close)
	vals := []float64{lv.Pivot, lv.R1, lv.R2, lv.R3, lv.S1, lv.S2, lv.S3}
	for i, name := range pivotColumns {
		col := make([]float64, s.Len())
		for j := range col {
			col[j] = vals[i]
		}
		f.Columns[name] = col
	}
	return f, nil
}

// Levels reads the pivot levels back out of an enriched frame.
func (p *PivotPoints) Levels(f Frame) (PivotLevels, error) {
	vals := make([]float64, len(pivotColumns))
	for i, name := range pivotColumns {
		v, err := f.lastDefined(name, 1)
		if err != nil {
			return PivotLevels{}, err
		}
		vals[i] = v[0]
	}
	return PivotLevels{Pivot: vals[0], R1: vals[1], R2: vals[2], R3: vals[3], S1: vals[4], S2: vals[5], S3: vals[6]}, nil
}

func (p *PivotPoints) Analyze(f Frame) (Result, error) {
	lv, err := p.Levels(f)
	if err != nil {
		return Result{}, err
	}
	last := f.Series.Last()
	price := last.Close

	res := Result{
		Name:  p.Name(),
		Kind:  p.Kind(),
		Value: lv.Pivot,
		TS:    last.TS,
		Score: pivotScore(price, lv),
	}
	switch {
	case price > lv.Pivot:
		res.Call = Buy
		res.Rationale = fmt.Sprintf("close %.4f above pivot %.4f", price, lv.Pivot)
	case price < lv.Pivot:
		res.Call = Sell
		res.Rationale = fmt.Sprintf("close %.4f below pivot %.4f", price, lv.Pivot)
	default:
		res.Call = Hold
		res.Rationale = fmt.Sprintf("close at pivot %.4f", lv.Pivot)
	}
	return res, nil
}

// pivotScore spreads S3..R3 evenly over 0..100 with the pivot at 50.
func pivotScore(price float64, lv PivotLevels) float64 {
	if lv.R3 <= lv.S3 {
		return 50
	}
	xs := []float64{lv.S3, lv.S2, lv.S1, lv.Pivot, lv.R1, lv.R2, lv.R3}
	ys := []float64{0, 100.0 / 6, 200.0 / 6, 50, 400.0 / 6, 500.0 / 6, 100}
	return interpolate(price, xs, ys)
}
