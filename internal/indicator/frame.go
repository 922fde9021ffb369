package indicator

import (
	"fmt"
	"math"

	"trading-advisorv1/internal/model"
)

// Frame is a series enriched with derived columns.
// Every column has one entry per bar; NaN marks bars before the window is full.
type Frame struct {
	Series  model.Series
	Columns map[string][]float64
}

func newFrame(s model.Series) Frame {
	return Frame{Series: s.Clone(), Columns: make(map[string][]float64)}
}

// Column returns a named column or an error if it was never calculated.
func (f Frame) Column(name string) ([]float64, error) {
	col, ok := f.Columns[name]
	if !ok {
		return nil, fmt.Errorf("frame %s: missing column %q", f.Series.Ticker, name)
	}
	return col, nil
}

// Len returns the number of bars in the frame.
func (f Frame) Len() int { return f.Series.Len() }

// lastDefined returns the last n values of a column, failing with
// ErrUndefined if the column is shorter or any of them is NaN.
func (f Frame) lastDefined(name string, n int) ([]float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if len(col) < n {
		return nil, fmt.Errorf("%s: need %d values, have %d: %w", name, n, len(col), ErrUndefined)
	}
	tail := col[len(col)-n:]
	for _, v := range tail {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s: window not full: %w", name, ErrUndefined)
		}
	}
	return tail, nil
}

func needBars(name string, s model.Series, n int) error {
	if s.Len() < n {
		return fmt.Errorf("%s: need %d bars, have %d: %w", name, n, s.Len(), ErrUndefined)
	}
	return nil
}
