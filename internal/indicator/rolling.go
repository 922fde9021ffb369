package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// The talib routines write zeros into the lookback region and index past
// the end of short inputs, so every wrapper checks the length first and
// replaces the lookback with NaN.

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rollingMean is the simple moving average of the trailing window ending at each bar.
func rollingMean(in []float64, window int) []float64 {
	out := nanSlice(len(in))
	if window < 1 || len(in) < window {
		return out
	}
	raw := talib.Sma(in, window)
	copy(out[window-1:], raw[window-1:])
	return out
}

// ewm is an exponential moving average with k = 2/(window+1), seeded with the
// simple mean of the first window values.
func ewm(in []float64, window int) []float64 {
	out := nanSlice(len(in))
	if window < 1 || len(in) < window {
		return out
	}
	if window == 1 {
		copy(out, in)
		return out
	}
	raw := talib.Ema(in, window)
	copy(out[window-1:], raw[window-1:])
	return out
}

// rollingMax and rollingMin need window >= 2 (talib returns zeros below that).
func rollingMax(in []float64, window int) []float64 {
	out := nanSlice(len(in))
	if window < 2 || len(in) < window {
		return out
	}
	raw := talib.Max(in, window)
	copy(out[window-1:], raw[window-1:])
	return out
}

func rollingMin(in []float64, window int) []float64 {
	out := nanSlice(len(in))
	if window < 2 || len(in) < window {
		return out
	}
	raw := talib.Min(in, window)
	copy(out[window-1:], raw[window-1:])
	return out
}

// rollingSampleStd is the n-1 normalised standard deviation of the window.
// talib.StdDev is the population form, rescaled here by sqrt(n/(n-1)).
func rollingSampleStd(in []float64, window int) []float64 {
	out := nanSlice(len(in))
	if window < 2 || len(in) < window {
		return out
	}
	raw := talib.StdDev(in, window, 1)
	scale := math.Sqrt(float64(window) / float64(window-1))
	for i := window - 1; i < len(in); i++ {
		out[i] = raw[i] * scale
	}
	return out
}
